// Package session implements the signed-cookie trust boundary. A verified
// Firebase ID token is wrapped, together with denormalised display claims,
// into an HMAC-signed envelope that later requests can validate without a
// round trip to Firebase for every page view.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/lumalingua/api/internal/domain"
)

const defaultTTL = 7 * 24 * time.Hour

var (
	// ErrSessionExpired signals that the session envelope is past its expiry.
	ErrSessionExpired = errors.New("session: envelope expired")
	// ErrSessionInvalid signals a malformed or tampered session envelope.
	ErrSessionInvalid = errors.New("session: envelope invalid")
)

type envelopeClaims struct {
	Record domain.SessionRecord `json:"rec"`
	jwt.RegisteredClaims
}

// Codec signs and validates session envelopes with HMAC-SHA256.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption customises codec behaviour.
type CodecOption func(*Codec)

// WithTTL overrides the default envelope lifetime.
func WithTTL(d time.Duration) CodecOption {
	return func(c *Codec) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithIssuer overrides the issuer claim stamped on envelopes.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithClock injects a custom clock, primarily for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec constructs a codec from the shared signing secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session: signing secret is required")
	}

	c := &Codec{
		secret: []byte(secret),
		issuer: "lumalingua",
		ttl:    defaultTTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// TTL returns the configured envelope lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode wraps the record into a signed envelope. The record's own expiry is
// stamped from the codec TTL so readers and the cookie Max-Age stay in step.
func (c *Codec) Encode(record domain.SessionRecord) (string, time.Time, error) {
	if strings.TrimSpace(record.LocalID) == "" {
		return "", time.Time{}, errors.New("session: record requires a local id")
	}

	now := c.now().UTC()
	expires := now.Add(c.ttl)
	record.ExpiresAt = expires.Unix()

	claims := envelopeClaims{
		Record: record,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   record.LocalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign envelope: %w", err)
	}

	return signed, expires, nil
}

// Decode validates the envelope signature and expiry and returns the record.
func (c *Codec) Decode(raw string) (*domain.SessionRecord, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSessionInvalid
	}

	// Claims are checked against the codec clock below, not the parser's
	// wall clock.
	claims := &envelopeClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrSessionInvalid
	}

	if !claims.VerifyExpiresAt(c.now().UTC(), true) {
		return nil, ErrSessionExpired
	}
	if !claims.VerifyIssuer(c.issuer, true) {
		return nil, ErrSessionInvalid
	}
	if strings.TrimSpace(claims.Record.LocalID) == "" {
		return nil, ErrSessionInvalid
	}

	record := claims.Record
	return &record, nil
}
