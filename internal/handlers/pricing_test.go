package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumalingua/api/internal/services"
)

func newPricingRouter(t *testing.T) http.Handler {
	t.Helper()
	pricing, err := services.NewPricingService(services.PricingServiceDeps{})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}
	handler := NewPricingHandlers(pricing)
	return NewRouter(WithPricingRoutes(handler.Routes))
}

func TestPricingHandlersCountryResolution(t *testing.T) {
	router := newPricingRouter(t)

	cases := []struct {
		name    string
		target  string
		headers map[string]string
		country string
		level   string
	}{
		{
			name:    "test country override",
			target:  "/api/pricing?test_country=co",
			headers: map[string]string{"CF-IPCountry": "DE"},
			country: "CO",
			level:   "low",
		},
		{
			name:    "edge header",
			target:  "/api/pricing",
			headers: map[string]string{"CF-IPCountry": "DE", "X-Appengine-Country": "CO"},
			country: "DE",
			level:   "high",
		},
		{
			name:    "platform header",
			target:  "/api/pricing",
			headers: map[string]string{"X-Appengine-Country": "MA"},
			country: "MA",
			level:   "low",
		},
		{
			name:    "default country",
			target:  "/api/pricing",
			country: "ES",
			level:   "high",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.Code)
			}

			var payload pricingPayload
			if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if payload.Country != tc.country {
				t.Fatalf("expected country %s, got %s", tc.country, payload.Country)
			}
			if payload.Level != tc.level {
				t.Fatalf("expected level %s, got %s", tc.level, payload.Level)
			}
			if payload.Currency != "EUR" || payload.Symbol != "€" {
				t.Fatalf("unexpected currency metadata %s %s", payload.Currency, payload.Symbol)
			}
		})
	}
}

func TestPricingHandlersCacheControl(t *testing.T) {
	router := newPricingRouter(t)

	prod := httptest.NewRequest(http.MethodGet, "/api/pricing", nil)
	prod.Host = "lumalingua.com"
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, prod)
	if got := resp.Header().Get("Cache-Control"); got != cacheControlProduction {
		t.Fatalf("expected %q, got %q", cacheControlProduction, got)
	}

	dev := httptest.NewRequest(http.MethodGet, "/api/pricing", nil)
	dev.Host = "localhost:8080"
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, dev)
	if got := resp.Header().Get("Cache-Control"); got != cacheControlDevelopment {
		t.Fatalf("expected %q, got %q", cacheControlDevelopment, got)
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if raw["isDevelopment"] != true {
		t.Fatalf("expected isDevelopment true, got %s", resp.Body.String())
	}

	var payload pricingPayload
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if payload.Prices["group"] != 10 {
		t.Fatalf("expected high-band group price 10, got %v", payload.Prices["group"])
	}
}

func TestPricingHandlersMethodNotAllowed(t *testing.T) {
	router := newPricingRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/pricing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
	var envelope map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("expected JSON error envelope: %v", err)
	}
	if envelope["error"] != "method_not_allowed" {
		t.Fatalf("unexpected error code %v", envelope["error"])
	}
}
