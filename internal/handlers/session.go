package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumalingua/api/internal/platform/httpx"
	"github.com/lumalingua/api/internal/platform/requestctx"
	sessioncookie "github.com/lumalingua/api/internal/platform/session"
	"github.com/lumalingua/api/internal/services"
)

const (
	maxSessionBodySize  = 64 * 1024
	mirrorCookieTTLDays = 7
)

// SessionHandlers owns the trusted session cookie and the lightweight mirror cookie.
type SessionHandlers struct {
	sessions services.SessionService
}

// NewSessionHandlers constructs a new SessionHandlers instance.
func NewSessionHandlers(sessions services.SessionService) *SessionHandlers {
	return &SessionHandlers{sessions: sessions}
}

// Routes registers the /session and /auth endpoints.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.createSession)
	r.Get("/session", h.readSession)
	r.Delete("/session", h.deleteSession)
	r.Post("/auth", h.createMirror)
	r.Delete("/auth", h.deleteSession)
}

type sessionTokenRequest struct {
	Token string `json:"token"`
}

func (h *SessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxSessionBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}

	var req sessionTokenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	issued, err := h.sessions.Issue(ctx, services.IssueSessionCommand{IDToken: req.Token})
	if err != nil {
		if errors.Is(err, services.ErrSessionInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
			return
		}
		// Provider internals stay in the server log; the client only learns
		// that authentication failed.
		requestctx.Logger(ctx).Warn("session issuance rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("authentication_failed", "could not verify credentials", http.StatusUnauthorized))
		return
	}

	sessioncookie.WriteTrusted(w, r, issued.Envelope, issued.Expires)

	writeJSONResponse(w, http.StatusOK, sessionCreatedResponse{
		Success: true,
		Claims:  sessionClaimsPayload(issued.Record),
	})
}

func (h *SessionHandlers) readSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service unavailable", http.StatusServiceUnavailable))
		return
	}

	envelope, ok := sessioncookie.ReadTrusted(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "no active session", http.StatusUnauthorized))
		return
	}

	record, err := h.sessions.Read(ctx, envelope)
	if err != nil {
		// A failed re-verification is terminal for this cookie instance.
		sessioncookie.Clear(w, r)
		logSessionRejection(ctx, err)
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "session is no longer valid", http.StatusUnauthorized))
		return
	}

	writeJSONResponse(w, http.StatusOK, sessionClaimsPayload(record))
}

func (h *SessionHandlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessioncookie.Clear(w, r)
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

// createMirror sets the authorization-inert `session` marker cookie. The
// token is checked only for presence; nothing derived from it is stored.
func (h *SessionHandlers) createMirror(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxSessionBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "could not read request body", http.StatusInternalServerError))
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "could not parse request body", http.StatusInternalServerError))
		return
	}

	token, ok := payload["token"].(string)
	if !ok || token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
		return
	}

	sessioncookie.WriteMirror(w, r, time.Now().Add(mirrorCookieTTLDays*24*time.Hour))

	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func logSessionRejection(ctx context.Context, err error) {
	requestctx.Logger(ctx).Warn("session re-verification failed", zap.Error(err))
}

type sessionCreatedResponse struct {
	Success bool          `json:"success"`
	Claims  sessionClaims `json:"claims"`
}

type sessionClaims struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	Provider      string `json:"provider,omitempty"`
	ExpiresAt     int64  `json:"exp"`
}

func sessionClaimsPayload(record services.SessionRecord) sessionClaims {
	return sessionClaims{
		LocalID:       record.LocalID,
		Email:         record.Email,
		Name:          record.Name,
		Picture:       record.Picture,
		EmailVerified: record.EmailVerified,
		Provider:      record.Provider,
		ExpiresAt:     record.ExpiresAt,
	}
}
