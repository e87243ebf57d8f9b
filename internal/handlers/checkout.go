package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/platform/auth"
	"github.com/lumalingua/api/internal/platform/httpx"
	"github.com/lumalingua/api/internal/services"
)

const maxCheckoutBodySize = 16 * 1024

// CheckoutHandlers exposes PSP checkout session creation and status lookups.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Post("/checkout", h.createCheckout)
		g.Get("/checkout/{intentId}", h.lookupPayment)
	})
}

type createCheckoutRequest struct {
	Tier       string `json:"tier"`
	Quantity   int64  `json:"quantity"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type createCheckoutResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	IntentID    string `json:"intent_id,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type paymentStatusResponse struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h *CheckoutHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createCheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutCommand{
		UserID:     identity.UID,
		Email:      identity.Email,
		Tier:       domain.ClassTier(strings.TrimSpace(req.Tier)),
		Quantity:   req.Quantity,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Locale:     checkoutLocaleFromRequest(r),
		Pricing:    pricingSignalsFromRequest(r),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createCheckoutResponse{
		SessionID:   result.SessionID,
		RedirectURL: result.RedirectURL,
		IntentID:    result.IntentID,
		Amount:      result.Amount,
		Currency:    result.Currency,
	})
}

func (h *CheckoutHandlers) lookupPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.checkout.LookupPayment(ctx, chi.URLParam(r, "intentId"))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentStatusResponse{
		IntentID: result.IntentID,
		Status:   result.Status,
		Amount:   result.Amount,
		Currency: result.Currency,
	})
}

// checkoutLocaleFromRequest extracts a locale hint for the PSP checkout page
// from the Accept-Language header.
func checkoutLocaleFromRequest(r *http.Request) string {
	header := r.Header.Get("Accept-Language")
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutProviderFailure):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_provider_failure", "payment provider rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
