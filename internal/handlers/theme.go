package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumalingua/api/internal/platform/httpx"
	sessioncookie "github.com/lumalingua/api/internal/platform/session"
)

var allowedThemes = map[string]struct{}{
	"light": {},
	"dark":  {},
}

// ThemeHandlers persists the visitor's theme preference in a long-lived cookie.
type ThemeHandlers struct{}

// NewThemeHandlers constructs a new ThemeHandlers instance.
func NewThemeHandlers() *ThemeHandlers {
	return &ThemeHandlers{}
}

// Routes registers the /set-theme endpoint.
func (h *ThemeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/set-theme", h.setTheme)
}

type setThemeRequest struct {
	Theme string `json:"theme"`
}

func (h *ThemeHandlers) setTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}

	var req setThemeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	// Invalid values leave the cookie untouched.
	if _, ok := allowedThemes[req.Theme]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "theme must be light or dark", http.StatusBadRequest))
		return
	}

	sessioncookie.WriteTheme(w, r, req.Theme)

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"message": "theme preference saved",
		"theme":   req.Theme,
	})
}
