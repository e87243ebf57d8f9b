package session

import (
	"net/http"
	"time"

	"github.com/lumalingua/api/internal/platform/httpx"
)

// Cookie names used across the site. TrustedCookieName carries the signed
// envelope and is the only cookie the server trusts for authorisation.
// MirrorCookieName is a client-visible presence marker with no authority.
const (
	TrustedCookieName = "__session"
	MirrorCookieName  = "session"
	ThemeCookieName   = "theme"
)

const themeCookieMaxAge = 365 * 24 * time.Hour

// WriteTrusted sets the signed session cookie. HttpOnly and SameSite=Strict
// keep the envelope out of reach of scripts and cross-site requests, and
// Secure is never relaxed, not even on development hosts.
func WriteTrusted(w http.ResponseWriter, _ *http.Request, envelope string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     TrustedCookieName,
		Value:    envelope,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires) / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// WriteMirror sets the non-authoritative presence marker. Nothing on the
// server grants access based on it; it only lets the edge skip rendering
// signed-in chrome for anonymous visitors.
func WriteMirror(w http.ResponseWriter, r *http.Request, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     MirrorCookieName,
		Value:    "1",
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires) / time.Second),
		HttpOnly: true,
		Secure:   !httpx.IsDevelopmentHost(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadTrusted extracts the raw envelope from the trusted cookie, if present.
func ReadTrusted(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(TrustedCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Clear expires both session cookies.
func Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     TrustedCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     MirrorCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   !httpx.IsDevelopmentHost(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// WriteTheme persists the visitor's theme preference for a year.
func WriteTheme(w http.ResponseWriter, r *http.Request, theme string) {
	http.SetCookie(w, &http.Cookie{
		Name:     ThemeCookieName,
		Value:    theme,
		Path:     "/",
		MaxAge:   int(themeCookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   !httpx.IsDevelopmentHost(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadTheme returns the stored theme preference, if any.
func ReadTheme(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(ThemeCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
