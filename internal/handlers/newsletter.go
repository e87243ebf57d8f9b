package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumalingua/api/internal/platform/httpx"
	"github.com/lumalingua/api/internal/platform/requestctx"
	"github.com/lumalingua/api/internal/services"
)

const maxNewsletterBodySize = 8 * 1024

// NewsletterHandlers exposes the public newsletter signup endpoint.
type NewsletterHandlers struct {
	newsletter services.NewsletterService
}

// NewNewsletterHandlers constructs a new NewsletterHandlers instance.
func NewNewsletterHandlers(newsletter services.NewsletterService) *NewsletterHandlers {
	return &NewsletterHandlers{newsletter: newsletter}
}

// Routes registers the /newsletter endpoint.
func (h *NewsletterHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/newsletter", h.subscribe)
}

type subscribeRequest struct {
	Email  string `json:"email"`
	Locale string `json:"locale"`
}

func (h *NewsletterHandlers) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.newsletter == nil {
		httpx.WriteError(ctx, w, httpx.NewError("newsletter_service_unavailable", "newsletter service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxNewsletterBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req subscribeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	err = h.newsletter.Subscribe(ctx, services.SubscribeCommand{
		Email:  req.Email,
		Locale: req.Locale,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNewsletterInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "a valid email address is required", http.StatusBadRequest))
		case errors.Is(err, services.ErrNewsletterProviderFailure):
			// Provider details stay server-side.
			requestctx.Logger(ctx).Error("newsletter provider failure", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("newsletter_provider_failure", "could not complete the signup", http.StatusBadGateway))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("newsletter_error", "failed to process signup", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}
