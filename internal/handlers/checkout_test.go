package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/platform/auth"
	"github.com/lumalingua/api/internal/services"
)

type stubCheckoutService struct {
	createFunc func(ctx context.Context, cmd services.CreateCheckoutCommand) (services.CheckoutResult, error)
	lookupFunc func(ctx context.Context, intentID string) (services.PaymentStatusResult, error)
}

func (s *stubCheckoutService) CreateCheckoutSession(ctx context.Context, cmd services.CreateCheckoutCommand) (services.CheckoutResult, error) {
	if s.createFunc == nil {
		return services.CheckoutResult{}, services.ErrCheckoutInvalidInput
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubCheckoutService) LookupPayment(ctx context.Context, intentID string) (services.PaymentStatusResult, error) {
	if s.lookupFunc == nil {
		return services.PaymentStatusResult{}, services.ErrCheckoutInvalidInput
	}
	return s.lookupFunc(ctx, intentID)
}

func newCheckoutRouter(svc services.CheckoutService) http.Handler {
	handler := NewCheckoutHandlers(nil, svc)
	return NewRouter(WithCheckoutRoutes(handler.Routes))
}

func TestCheckoutHandlersCreateSession(t *testing.T) {
	var captured services.CreateCheckoutCommand
	svc := &stubCheckoutService{
		createFunc: func(_ context.Context, cmd services.CreateCheckoutCommand) (services.CheckoutResult, error) {
			captured = cmd
			return services.CheckoutResult{
				SessionID:   "cs_test_1",
				RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_1",
				IntentID:    "pi_1",
				Amount:      6000,
				Currency:    "EUR",
			}, nil
		},
	}
	router := newCheckoutRouter(svc)

	body := `{"tier":"individual_standard","quantity":2,"success_url":"https://lumalingua.com/gracias","cancel_url":"https://lumalingua.com/precios"}`
	req := httptest.NewRequest(http.MethodPost, "/api/checkout?test_country=co", strings.NewReader(body))
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9")
	req = withTestIdentity(req, &auth.Identity{UID: "user-1", Email: "ana@example.com"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	if captured.UserID != "user-1" || captured.Email != "ana@example.com" {
		t.Fatalf("identity not forwarded: %+v", captured)
	}
	if captured.Tier != domain.ClassTier("individual_standard") || captured.Quantity != 2 {
		t.Fatalf("unexpected order details: %+v", captured)
	}
	// The amount charged must come from the same resolver as GET /pricing.
	if captured.Pricing.TestCountry != "co" {
		t.Fatalf("pricing signals not forwarded: %+v", captured.Pricing)
	}
	if captured.Locale != "es-ES" {
		t.Fatalf("unexpected locale %q", captured.Locale)
	}

	var payload createCheckoutResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.SessionID != "cs_test_1" || payload.Amount != 6000 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCheckoutHandlersCreateRequiresIdentity(t *testing.T) {
	router := newCheckoutRouter(&stubCheckoutService{})

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{"tier":"group","quantity":1}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestCheckoutHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "invalid input", err: services.ErrCheckoutInvalidInput, code: http.StatusBadRequest},
		{name: "provider failure", err: services.ErrCheckoutProviderFailure, code: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCheckoutService{
				createFunc: func(context.Context, services.CreateCheckoutCommand) (services.CheckoutResult, error) {
					return services.CheckoutResult{}, tc.err
				},
			}
			router := newCheckoutRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{"tier":"group","quantity":1}`))
			req = withTestIdentity(req, &auth.Identity{UID: "user-1"})
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, resp.Code)
			}
		})
	}
}

func TestCheckoutHandlersLookupPayment(t *testing.T) {
	svc := &stubCheckoutService{
		lookupFunc: func(_ context.Context, intentID string) (services.PaymentStatusResult, error) {
			if intentID != "pi_1" {
				t.Fatalf("unexpected intent id %q", intentID)
			}
			return services.PaymentStatusResult{
				IntentID: "pi_1",
				Status:   "succeeded",
				Amount:   6000,
				Currency: "EUR",
			}, nil
		},
	}
	router := newCheckoutRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/checkout/pi_1", nil)
	req = withTestIdentity(req, &auth.Identity{UID: "user-1"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var payload paymentStatusResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "succeeded" || payload.Amount != 6000 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
