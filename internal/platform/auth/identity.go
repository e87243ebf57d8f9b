package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles recognised when checking authorisation boundaries.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is the authenticated principal extracted from a Firebase ID token.
type Identity struct {
	UID           string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
	Provider      string
	Roles         []string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token behind this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity holds the role, case-insensitively.
func (i *Identity) HasRole(role string) bool {
	if i == nil || strings.TrimSpace(role) == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, strings.TrimSpace(role)) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity holds at least one of the roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity stores the identity on the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext reads the identity placed there by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// IdentityFromToken assembles an Identity from a verified Firebase ID token.
// Display claims follow the standard OIDC claim names emitted by Firebase.
func IdentityFromToken(token *firebaseauth.Token) *Identity {
	if token == nil {
		return nil
	}
	return &Identity{
		UID:           token.UID,
		Email:         claimAsString(token.Claims, "email"),
		Name:          claimAsString(token.Claims, "name"),
		Picture:       claimAsString(token.Claims, "picture"),
		EmailVerified: claimAsBool(token.Claims, "email_verified"),
		Provider:      strings.TrimSpace(token.Firebase.SignInProvider),
		token:         token,
	}
}
