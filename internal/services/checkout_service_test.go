package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/payments"
)

type stubPaymentProvider struct {
	lastRequest payments.CheckoutSessionRequest
	session     payments.CheckoutSession
	details     payments.PaymentDetails
	createErr   error
	lookupErr   error
}

func (s *stubPaymentProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.lastRequest = req
	if s.createErr != nil {
		return payments.CheckoutSession{}, s.createErr
	}
	return s.session, nil
}

func (s *stubPaymentProvider) LookupPayment(_ context.Context, req payments.LookupRequest) (payments.PaymentDetails, error) {
	if s.lookupErr != nil {
		return payments.PaymentDetails{}, s.lookupErr
	}
	details := s.details
	details.IntentID = req.IntentID
	return details, nil
}

func newTestCheckoutService(t *testing.T, provider payments.Provider) CheckoutService {
	t.Helper()
	pricing, err := NewPricingService(PricingServiceDeps{})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{Pricing: pricing, Provider: provider})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func TestCheckoutServiceChargesResolvedTierPrice(t *testing.T) {
	provider := &stubPaymentProvider{
		session: payments.CheckoutSession{
			ID:          "cs_test",
			RedirectURL: "https://checkout.stripe.com/pay/cs_test",
			IntentID:    "pi_test",
		},
	}
	svc := newTestCheckoutService(t, provider)

	result, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutCommand{
		UserID:     "user-1",
		Email:      "amira@example.com",
		Tier:       domain.TierGroup,
		Quantity:   4,
		SuccessURL: "https://lumalingua.com/checkout/success",
		CancelURL:  "https://lumalingua.com/checkout/cancel",
		Locale:     "de",
		Pricing:    PricingSignals{TestCountry: "MA"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}

	// Low band group price is 4.50 EUR, so 450 cents per seat.
	if len(provider.lastRequest.Items) != 1 {
		t.Fatalf("expected a single line item, got %d", len(provider.lastRequest.Items))
	}
	item := provider.lastRequest.Items[0]
	if item.Amount != 450 {
		t.Fatalf("expected unit amount 450, got %d", item.Amount)
	}
	if item.Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", item.Quantity)
	}
	if result.Amount != 1800 {
		t.Fatalf("expected total 1800, got %d", result.Amount)
	}
	if result.Currency != "EUR" {
		t.Fatalf("expected EUR, got %s", result.Currency)
	}
	if result.SessionID != "cs_test" || result.IntentID != "pi_test" {
		t.Fatalf("unexpected result %+v", result)
	}

	meta := provider.lastRequest.Metadata
	if meta["tier"] != string(domain.TierGroup) || meta["country"] != "MA" || meta["userRef"] != "user-1" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestCheckoutServiceHighBandPricing(t *testing.T) {
	provider := &stubPaymentProvider{}
	svc := newTestCheckoutService(t, provider)

	_, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutCommand{
		UserID:     "user-1",
		Tier:       domain.TierIndividualStandard,
		Quantity:   1,
		SuccessURL: "https://lumalingua.com/ok",
		CancelURL:  "https://lumalingua.com/no",
		Pricing:    PricingSignals{EdgeCountry: "DE"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if provider.lastRequest.Items[0].Amount != 3000 {
		t.Fatalf("expected unit amount 3000, got %d", provider.lastRequest.Items[0].Amount)
	}
}

func TestCheckoutServiceValidatesCommand(t *testing.T) {
	svc := newTestCheckoutService(t, &stubPaymentProvider{})

	cases := map[string]CreateCheckoutCommand{
		"missing user": {
			Tier: domain.TierGroup, Quantity: 1,
			SuccessURL: "https://x.com/a", CancelURL: "https://x.com/b",
		},
		"unknown tier": {
			UserID: "u", Tier: "premium_vip", Quantity: 1,
			SuccessURL: "https://x.com/a", CancelURL: "https://x.com/b",
		},
		"zero quantity": {
			UserID: "u", Tier: domain.TierGroup, Quantity: 0,
			SuccessURL: "https://x.com/a", CancelURL: "https://x.com/b",
		},
		"excessive quantity": {
			UserID: "u", Tier: domain.TierGroup, Quantity: checkoutMaxQuantity + 1,
			SuccessURL: "https://x.com/a", CancelURL: "https://x.com/b",
		},
		"relative urls": {
			UserID: "u", Tier: domain.TierGroup, Quantity: 1,
			SuccessURL: "/success", CancelURL: "/cancel",
		},
	}

	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.CreateCheckoutSession(context.Background(), cmd); !errors.Is(err, ErrCheckoutInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCheckoutServiceWrapsProviderFailure(t *testing.T) {
	provider := &stubPaymentProvider{createErr: errors.New("stripe down")}
	svc := newTestCheckoutService(t, provider)

	_, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutCommand{
		UserID:     "user-1",
		Tier:       domain.TierGroup,
		Quantity:   1,
		SuccessURL: "https://x.com/a",
		CancelURL:  "https://x.com/b",
	})
	if !errors.Is(err, ErrCheckoutProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestCheckoutServiceLookupPayment(t *testing.T) {
	provider := &stubPaymentProvider{
		details: payments.PaymentDetails{
			Status:   payments.StatusSucceeded,
			Amount:   1800,
			Currency: "EUR",
		},
	}
	svc := newTestCheckoutService(t, provider)

	result, err := svc.LookupPayment(context.Background(), "pi_test")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if result.IntentID != "pi_test" || result.Status != string(payments.StatusSucceeded) {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := svc.LookupPayment(context.Background(), " "); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input for blank intent, got %v", err)
	}
}
