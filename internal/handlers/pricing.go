package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumalingua/api/internal/platform/httpx"
	"github.com/lumalingua/api/internal/services"
)

const (
	headerEdgeCountry     = "CF-IPCountry"
	headerPlatformCountry = "X-Appengine-Country"

	cacheControlDevelopment = "no-cache"
	cacheControlProduction  = "public, max-age=3600"
)

// PricingHandlers exposes the public pricing resolver endpoint.
type PricingHandlers struct {
	pricing services.PricingService
}

// NewPricingHandlers constructs a new PricingHandlers instance.
func NewPricingHandlers(pricing services.PricingService) *PricingHandlers {
	return &PricingHandlers{pricing: pricing}
}

// Routes registers the /pricing endpoint.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pricing", h.getPricing)
}

func (h *PricingHandlers) getPricing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	quote := h.pricing.Resolve(ctx, pricingSignalsFromRequest(r))

	if quote.IsDevelopment {
		w.Header().Set("Cache-Control", cacheControlDevelopment)
	} else {
		w.Header().Set("Cache-Control", cacheControlProduction)
	}

	writeJSONResponse(w, http.StatusOK, buildPricingPayload(quote))
}

func pricingSignalsFromRequest(r *http.Request) services.PricingSignals {
	return services.PricingSignals{
		TestCountry:     r.URL.Query().Get("test_country"),
		EdgeCountry:     r.Header.Get(headerEdgeCountry),
		PlatformCountry: r.Header.Get(headerPlatformCountry),
		IsDevelopment:   httpx.IsDevelopmentHost(r),
	}
}

type pricingPayload struct {
	Country       string             `json:"country"`
	Level         string             `json:"level"`
	Currency      string             `json:"currency"`
	Symbol        string             `json:"symbol"`
	Prices        map[string]float64 `json:"prices"`
	IsDevelopment bool               `json:"isDevelopment"`
}

func buildPricingPayload(quote services.PricingQuote) pricingPayload {
	prices := make(map[string]float64, len(quote.Prices))
	for tier, amount := range quote.Prices {
		prices[string(tier)] = amount
	}
	return pricingPayload{
		Country:       quote.Country,
		Level:         string(quote.Level),
		Currency:      quote.Currency,
		Symbol:        quote.Symbol,
		Prices:        prices,
		IsDevelopment: quote.IsDevelopment,
	}
}
