package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 5 * time.Minute
)

// Logger captures the minimal logging surface needed by verification middleware.
type Logger interface {
	Printf(format string, args ...interface{})
}

// SecretProvider hands back the shared secret registered under a name.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretProviderFunc lets a plain function serve as a SecretProvider.
type SecretProviderFunc func(context.Context, string) (string, error)

// GetSecret implements SecretProvider.
func (f SecretProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	if f == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	return f(ctx, name)
}

// NonceStore tracks seen nonces for replay prevention. UseNonce reports true
// when the nonce was fresh and has now been recorded.
type NonceStore interface {
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore keeps nonces in process memory. Sufficient for a single
// instance; a shared store is needed once the service scales out.
type InMemoryNonceStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewInMemoryNonceStore returns an empty single-process store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{seen: make(map[string]time.Time)}
}

// UseNonce records the nonce until expiry, rejecting replays in the meantime.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	now := time.Now()
	if expiry.Before(now) {
		return false, errors.New("auth: nonce expiry is in the past")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, exp := range s.seen {
		if exp.Before(now) {
			delete(s.seen, key)
		}
	}

	key := scope + "::" + nonce
	if exp, dup := s.seen[key]; dup && exp.After(now) {
		return false, nil
	}
	s.seen[key] = expiry
	return true, nil
}

// HMACValidator verifies signed requests from trusted integrations such as
// the scheduling widget's webhook callbacks.
type HMACValidator struct {
	provider SecretProvider
	nonces   NonceStore
	logger   Logger
	now      func() time.Time

	sigHeader   string
	tsHeader    string
	nonceHeader string
	clockSkew   time.Duration
	nonceTTL    time.Duration

	secrets sync.Map
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator over the given secret provider and nonce store.
func NewHMACValidator(provider SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		provider:    provider,
		nonces:      nonces,
		logger:      log.Default(),
		now:         time.Now,
		sigHeader:   defaultSignatureHeader,
		tsHeader:    defaultTimestampHeader,
		nonceHeader: defaultNonceHeader,
		clockSkew:   defaultClockSkew,
		nonceTTL:    defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithHMACLogger routes validator diagnostics to logger.
func WithHMACLogger(logger Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACClock substitutes the time source used for skew checks.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders renames the signature, timestamp and nonce headers. Empty
// values keep the defaults.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		set := func(dst *string, value string) {
			if value != "" {
				*dst = value
			}
		}
		set(&v.sigHeader, signature)
		set(&v.tsHeader, timestamp)
		set(&v.nonceHeader, nonce)
	}
}

// WithHMACClockSkew widens or narrows the accepted timestamp window.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// WithHMACNonceTTL changes how long used nonces are remembered.
func WithHMACNonceTTL(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

type hmacFailure struct {
	status  int
	code    string
	message string
}

// RequireHMAC enforces a valid signature computed with the named secret.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	scope := strings.TrimSpace(secretName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fail := v.verify(r, scope); fail != nil {
				respondAuthError(r.Context(), w, fail.status, fail.code, fail.message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (v *HMACValidator) verify(r *http.Request, scope string) *hmacFailure {
	ctx := r.Context()

	if scope == "" {
		return &hmacFailure{http.StatusServiceUnavailable, "verification_unavailable", "hmac secret not configured"}
	}
	secret, err := v.loadSecret(ctx, scope)
	if err != nil {
		v.logf("auth: hmac secret lookup failed: %v", err)
		return &hmacFailure{http.StatusServiceUnavailable, "verification_unavailable", "hmac secret unavailable"}
	}

	rawSig := strings.TrimSpace(r.Header.Get(v.sigHeader))
	rawTS := strings.TrimSpace(r.Header.Get(v.tsHeader))
	nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
	switch {
	case rawSig == "":
		return &hmacFailure{http.StatusUnauthorized, "signature_missing", "signature header missing"}
	case rawTS == "":
		return &hmacFailure{http.StatusUnauthorized, "timestamp_missing", "signature timestamp missing"}
	case nonce == "":
		return &hmacFailure{http.StatusUnauthorized, "nonce_missing", "signature nonce missing"}
	}

	ts, err := parseSignatureTimestamp(rawTS)
	if err != nil {
		return &hmacFailure{http.StatusUnauthorized, "timestamp_invalid", "signature timestamp invalid"}
	}
	if skew := v.now().Sub(ts); skew > v.clockSkew || skew < -v.clockSkew {
		return &hmacFailure{http.StatusUnauthorized, "timestamp_skew", "signature timestamp outside allowed window"}
	}

	body, err := bufferBody(r)
	if err != nil {
		return &hmacFailure{http.StatusBadRequest, "invalid_body", "unable to read body for signature verification"}
	}

	candidates := decodeSignature(rawSig)
	if len(candidates) == 0 {
		return &hmacFailure{http.StatusUnauthorized, "signature_invalid", "signature encoding invalid"}
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonicalRequest(r, body, rawTS, nonce))
	expected := mac.Sum(nil)
	matched := false
	for _, sig := range candidates {
		if hmac.Equal(sig, expected) {
			matched = true
		}
	}
	if !matched {
		return &hmacFailure{http.StatusUnauthorized, "signature_mismatch", "signature verification failed"}
	}

	if v.nonces == nil {
		return &hmacFailure{http.StatusServiceUnavailable, "verification_unavailable", "nonce store unavailable"}
	}
	expiry := ts.Add(v.nonceTTL)
	if expiry.Before(v.now()) {
		expiry = v.now().Add(v.nonceTTL)
	}
	fresh, err := v.nonces.UseNonce(ctx, scope, nonce, expiry)
	if err != nil {
		v.logf("auth: nonce store error: %v", err)
		return &hmacFailure{http.StatusServiceUnavailable, "verification_unavailable", "nonce storage error"}
	}
	if !fresh {
		return &hmacFailure{http.StatusUnauthorized, "nonce_replay", "duplicate signature nonce"}
	}

	return nil
}

func (v *HMACValidator) logf(format string, args ...interface{}) {
	if v != nil && v.logger != nil {
		v.logger.Printf(format, args...)
	}
}

func (v *HMACValidator) loadSecret(ctx context.Context, name string) ([]byte, error) {
	if v == nil || v.provider == nil {
		return nil, errors.New("auth: secret provider not configured")
	}
	if cached, ok := v.secrets.Load(name); ok {
		if secret, ok := cached.([]byte); ok && len(secret) > 0 {
			return secret, nil
		}
	}
	raw, err := v.provider.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, errors.New("auth: secret is empty")
	}
	secret := []byte(raw)
	v.secrets.Store(name, secret)
	return secret, nil
}

// bufferBody reads the request body and replaces it so the handler can read
// it again after verification.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(strings.NewReader(string(buf)))
	return buf, nil
}

// decodeSignature returns every plausible reading of the header value. A hex
// digest is also valid base64, so both decodings are kept as candidates.
func decodeSignature(value string) [][]byte {
	var candidates [][]byte
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		candidates = append(candidates, decoded)
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		candidates = append(candidates, decoded)
	}
	return candidates
}

// parseSignatureTimestamp accepts RFC3339 (with or without sub-second
// precision) or Unix seconds.
func parseSignatureTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("auth: timestamp empty")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, errors.New("auth: unable to parse signature timestamp")
	}
	return time.Unix(seconds, 0).UTC(), nil
}

// canonicalRequest builds the signed string: METHOD, path, timestamp, nonce,
// and the hex body digest joined by newlines.
func canonicalRequest(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	digest := sha256.Sum256(body)
	parts := []string{
		strings.ToUpper(r.Method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(digest[:]),
	}
	return []byte(strings.Join(parts, "\n"))
}
