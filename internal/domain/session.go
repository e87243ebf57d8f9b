package domain

// SessionRecord is the claim set persisted inside the signed session cookie.
// The embedded ID token is the source of truth for identity; the remaining
// fields are denormalized display claims captured at creation time and must be
// re-verified against the identity provider before being trusted.
type SessionRecord struct {
	IDToken       string `json:"jwt"`
	LocalID       string `json:"localId"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	Provider      string `json:"provider,omitempty"`
	ExpiresAt     int64  `json:"exp"`
}
