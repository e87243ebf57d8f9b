package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/platform/auth"
)

var (
	// ErrSessionInvalidInput indicates validation failures for session operations.
	ErrSessionInvalidInput = errors.New("session: invalid input")
	// ErrSessionUnauthorized is returned when the envelope or the embedded token
	// fails verification; the caller must discard the cookie.
	ErrSessionUnauthorized = errors.New("session: unauthorized")
)

// SessionTokenVerifier re-checks a raw ID token against the identity provider.
type SessionTokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (*auth.Identity, error)
}

// SessionEnvelopeCodec signs and reopens the trusted cookie payload.
type SessionEnvelopeCodec interface {
	Encode(record domain.SessionRecord) (string, time.Time, error)
	Decode(raw string) (*domain.SessionRecord, error)
}

// SessionServiceDeps bundles collaborators required to construct a SessionService.
type SessionServiceDeps struct {
	Verifier SessionTokenVerifier
	Codec    SessionEnvelopeCodec
}

type sessionService struct {
	verifier SessionTokenVerifier
	codec    SessionEnvelopeCodec
}

// NewSessionService wires dependencies into a concrete SessionService implementation.
func NewSessionService(deps SessionServiceDeps) (SessionService, error) {
	if deps.Verifier == nil {
		return nil, errors.New("session service: token verifier is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("session service: envelope codec is required")
	}
	return &sessionService{
		verifier: deps.Verifier,
		codec:    deps.Codec,
	}, nil
}

// Issue verifies the provider-issued ID token and, on success, seals the
// resulting claims into a signed envelope for the trusted cookie.
func (s *sessionService) Issue(ctx context.Context, cmd IssueSessionCommand) (IssuedSession, error) {
	token := strings.TrimSpace(cmd.IDToken)
	if token == "" {
		return IssuedSession{}, fmt.Errorf("%w: token is required", ErrSessionInvalidInput)
	}

	identity, err := s.verifier.VerifyToken(ctx, token)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("%w: %w", ErrSessionUnauthorized, err)
	}

	record := domain.SessionRecord{
		IDToken:       token,
		LocalID:       identity.UID,
		Email:         identity.Email,
		Name:          identity.Name,
		Picture:       identity.Picture,
		EmailVerified: identity.EmailVerified,
		Provider:      identity.Provider,
	}

	envelope, expires, err := s.codec.Encode(record)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("session: seal envelope: %w", err)
	}
	record.ExpiresAt = expires.Unix()

	return IssuedSession{
		Record:   record,
		Envelope: envelope,
		Expires:  expires,
	}, nil
}

// Read reopens the envelope and re-verifies the embedded token with the
// provider before trusting any denormalized claim. Every failure collapses to
// ErrSessionUnauthorized so the handler clears the cookie in one place.
func (s *sessionService) Read(ctx context.Context, envelope string) (SessionRecord, error) {
	if strings.TrimSpace(envelope) == "" {
		return SessionRecord{}, fmt.Errorf("%w: envelope is required", ErrSessionUnauthorized)
	}

	record, err := s.codec.Decode(envelope)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("%w: %w", ErrSessionUnauthorized, err)
	}

	identity, err := s.verifier.VerifyToken(ctx, record.IDToken)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("%w: %w", ErrSessionUnauthorized, err)
	}

	// Claims are refreshed from the live verification, not the cookie copy.
	record.LocalID = identity.UID
	record.Email = identity.Email
	record.Name = identity.Name
	record.Picture = identity.Picture
	record.EmailVerified = identity.EmailVerified
	record.Provider = identity.Provider

	return *record, nil
}
