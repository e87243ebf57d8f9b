package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func signRequest(t *testing.T, v *HMACValidator, r *http.Request, secret, nonce string, at time.Time) {
	t.Helper()

	body := []byte{}
	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		body = raw
		r.Body = io.NopCloser(strings.NewReader(string(raw)))
	}

	ts := at.UTC().Format(time.RFC3339Nano)
	mac := hmac.New(sha256.New, []byte(secret))
	digest := sha256.Sum256(body)
	mac.Write([]byte(strings.Join([]string{
		strings.ToUpper(r.Method),
		r.URL.EscapedPath(),
		ts,
		nonce,
		hex.EncodeToString(digest[:]),
	}, "\n")))

	r.Header.Set(v.sigHeader, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	r.Header.Set(v.tsHeader, ts)
	r.Header.Set(v.nonceHeader, nonce)
}

func newTestValidator(secret string, now time.Time) *HMACValidator {
	provider := SecretProviderFunc(func(context.Context, string) (string, error) {
		return secret, nil
	})
	return NewHMACValidator(provider, NewInMemoryNonceStore(),
		WithHMACClock(func() time.Time { return now }),
	)
}

func TestHMACValidatorAcceptsSignedRequest(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	v := newTestValidator("topsecret", now)

	var sawBody string
	handler := v.RequireHMAC("booking")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		sawBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/webhook", strings.NewReader(`{"event":"invitee.created"}`))
	signRequest(t, v, req, "topsecret", "nonce-1", now)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sawBody != `{"event":"invitee.created"}` {
		t.Fatalf("handler saw restored body %q", sawBody)
	}
}

func TestHMACValidatorRejectsReplay(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	v := newTestValidator("topsecret", now)
	handler := v.RequireHMAC("booking")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for attempt, want := range []int{http.StatusOK, http.StatusUnauthorized} {
		req := httptest.NewRequest(http.MethodPost, "/api/bookings/webhook", strings.NewReader(`{}`))
		signRequest(t, v, req, "topsecret", "nonce-replayed", now)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", attempt, want, rec.Code)
		}
	}
}

func TestHMACValidatorRejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	v := newTestValidator("topsecret", now)
	handler := v.RequireHMAC("booking")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/webhook", strings.NewReader(`{}`))
	signRequest(t, v, req, "topsecret", "nonce-stale", now.Add(-time.Hour))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHMACValidatorRejectsTamperedBody(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	v := newTestValidator("topsecret", now)
	handler := v.RequireHMAC("booking")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/webhook", strings.NewReader(`{"amount":10}`))
	signRequest(t, v, req, "topsecret", "nonce-tamper", now)
	req.Body = io.NopCloser(strings.NewReader(`{"amount":9999}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHMACValidatorAcceptsHexSignature(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	v := newTestValidator("topsecret", now)
	handler := v.RequireHMAC("booking")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/webhook", strings.NewReader(`{}`))
	signRequest(t, v, req, "topsecret", "nonce-hex", now)

	decoded, err := base64.StdEncoding.DecodeString(req.Header.Get(v.sigHeader))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	req.Header.Set(v.sigHeader, hex.EncodeToString(decoded))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
