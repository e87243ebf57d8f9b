package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lumalingua/api/internal/domain"
)

func testRecord() domain.SessionRecord {
	return domain.SessionRecord{
		IDToken:       "firebase-id-token",
		LocalID:       "uid-123",
		Email:         "ana@example.com",
		Name:          "Ana",
		Picture:       "https://example.com/ana.png",
		EmailVerified: true,
		Provider:      "google.com",
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}

	envelope, expires, err := codec.Encode(testRecord())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if envelope == "" {
		t.Fatal("expected non-empty envelope")
	}
	if until := time.Until(expires); until < 6*24*time.Hour {
		t.Fatalf("expected roughly 7 day expiry, got %s", until)
	}

	record, err := codec.Decode(envelope)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if record.LocalID != "uid-123" {
		t.Fatalf("unexpected local id %q", record.LocalID)
	}
	if record.Email != "ana@example.com" || !record.EmailVerified {
		t.Fatalf("claims not preserved: %+v", record)
	}
	if record.IDToken != "firebase-id-token" {
		t.Fatalf("id token not preserved: %q", record.IDToken)
	}
	if record.ExpiresAt != expires.Unix() {
		t.Fatalf("record expiry %d does not match envelope expiry %d", record.ExpiresAt, expires.Unix())
	}
}

func TestCodecRejectsTamperedEnvelope(t *testing.T) {
	codec, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}

	envelope, _, err := codec.Encode(testRecord())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	parts := strings.Split(envelope, ".")
	if len(parts) != 3 {
		t.Fatalf("expected three envelope segments, got %d", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := codec.Decode(tampered); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestCodecRejectsForeignSecret(t *testing.T) {
	signer, err := NewCodec("secret-a")
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}
	reader, err := NewCodec("secret-b")
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}

	envelope, _, err := signer.Encode(testRecord())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	if _, err := reader.Decode(envelope); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestCodecRejectsForeignIssuer(t *testing.T) {
	signer, err := NewCodec("test-secret", WithIssuer("other-site"))
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}
	reader, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}

	envelope, _, err := signer.Encode(testRecord())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	if _, err := reader.Decode(envelope); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestCodecExpiredEnvelope(t *testing.T) {
	clock := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	codec, err := NewCodec("test-secret", WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}

	envelope, _, err := codec.Encode(testRecord())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	clock = clock.Add(8 * 24 * time.Hour)
	if _, err := codec.Decode(envelope); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestCodecRejectsEmptyEnvelope(t *testing.T) {
	codec, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}
	if _, err := codec.Decode("   "); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestTrustedCookieAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "https://lumalingua.com/api/session", nil)
	req.Host = "lumalingua.com"

	WriteTrusted(rec, req, "envelope-value", time.Now().Add(7*24*time.Hour))
	WriteMirror(rec, req, time.Now().Add(7*24*time.Hour))

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}

	trusted := cookies[0]
	if trusted.Name != TrustedCookieName {
		t.Fatalf("unexpected cookie name %q", trusted.Name)
	}
	if !trusted.HttpOnly || !trusted.Secure || trusted.SameSite != http.SameSiteStrictMode {
		t.Fatalf("trusted cookie attributes wrong: %+v", trusted)
	}

	mirror := cookies[1]
	if mirror.Name != MirrorCookieName {
		t.Fatalf("unexpected cookie name %q", mirror.Name)
	}
	if !mirror.HttpOnly || mirror.SameSite != http.SameSiteLaxMode {
		t.Fatalf("mirror cookie attributes wrong: %+v", mirror)
	}
}

func TestTrustedCookieInsecureOnLocalhost(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "http://localhost:8080/api/session", nil)
	req.Host = "localhost:8080"

	WriteTrusted(rec, req, "envelope-value", time.Now().Add(time.Hour))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].Secure {
		t.Fatal("expected insecure cookie on localhost")
	}
}

func TestClearExpiresBothCookiesSecureHost(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "https://lumalingua.com/api/session", nil)
	req.Host = "lumalingua.com"

	Clear(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	for _, cookie := range cookies {
		if cookie.MaxAge != -1 {
			t.Fatalf("cookie %q not expired: MaxAge=%d", cookie.Name, cookie.MaxAge)
		}
	}
}
