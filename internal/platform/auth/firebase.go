// Package auth covers the two trust boundaries of the API: Firebase ID token
// verification for end users and HMAC signature verification for webhook
// callers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/lumalingua/api/internal/platform/config"
)

// IDTokenVerifier checks Firebase ID tokens against the project's public
// signing keys via the Admin SDK.
type IDTokenVerifier struct {
	auth    *firebaseauth.Client
	timeout time.Duration
}

// NewIDTokenVerifier initialises the Admin SDK for the configured project.
func NewIDTokenVerifier(ctx context.Context, cfg config.FirebaseConfig) (*IDTokenVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}
	client, err := newAdminAuthClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &IDTokenVerifier{auth: client, timeout: defaultVerifyTimeout}, nil
}

func newAdminAuthClient(ctx context.Context, cfg config.FirebaseConfig) (*firebaseauth.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return client, nil
}

// VerifyIDToken validates the token within the verifier's timeout.
func (v *IDTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.auth == nil {
		return nil, errors.New("firebase verifier not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.auth.VerifyIDToken(ctx, idToken)
}
