package services

import (
	"context"
	"testing"

	domain "github.com/lumalingua/api/internal/domain"
)

func TestPricingServiceResolveSignalPrecedence(t *testing.T) {
	svc, err := NewPricingService(PricingServiceDeps{})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}

	cases := []struct {
		name    string
		signals PricingSignals
		country string
		level   domain.PriceLevel
	}{
		{
			name:    "test country wins over headers",
			signals: PricingSignals{TestCountry: "co", EdgeCountry: "DE", PlatformCountry: "FR"},
			country: "CO",
			level:   domain.PriceLevelLow,
		},
		{
			name:    "edge header wins over platform header",
			signals: PricingSignals{EdgeCountry: "DE", PlatformCountry: "CO"},
			country: "DE",
			level:   domain.PriceLevelHigh,
		},
		{
			name:    "platform header as fallback",
			signals: PricingSignals{PlatformCountry: "jp"},
			country: "JP",
			level:   domain.PriceLevelHigh,
		},
		{
			name:    "no signals falls back to default",
			signals: PricingSignals{},
			country: "ES",
			level:   domain.PriceLevelHigh,
		},
		{
			name:    "blank signals are skipped",
			signals: PricingSignals{TestCountry: "  ", EdgeCountry: "", PlatformCountry: "MA"},
			country: "MA",
			level:   domain.PriceLevelLow,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quote := svc.Resolve(context.Background(), tc.signals)
			if quote.Country != tc.country {
				t.Fatalf("expected country %s, got %s", tc.country, quote.Country)
			}
			if quote.Level != tc.level {
				t.Fatalf("expected level %s, got %s", tc.level, quote.Level)
			}
		})
	}
}

func TestPricingServiceResolvePriceTables(t *testing.T) {
	svc, err := NewPricingService(PricingServiceDeps{})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}

	high := svc.Resolve(context.Background(), PricingSignals{TestCountry: "DE"})
	if high.Currency != "EUR" || high.Symbol != "€" {
		t.Fatalf("unexpected currency metadata: %s %s", high.Currency, high.Symbol)
	}
	wantHigh := domain.PriceTable{
		domain.TierIndividualStandard:     30,
		domain.TierIndividualConversation: 20,
		domain.TierGroup:                  10,
	}
	for tier, amount := range wantHigh {
		if high.Prices[tier] != amount {
			t.Fatalf("expected high %s price %v, got %v", tier, amount, high.Prices[tier])
		}
	}

	low := svc.Resolve(context.Background(), PricingSignals{TestCountry: "AR"})
	wantLow := domain.PriceTable{
		domain.TierIndividualStandard:     15,
		domain.TierIndividualConversation: 10,
		domain.TierGroup:                  4.5,
	}
	for tier, amount := range wantLow {
		if low.Prices[tier] != amount {
			t.Fatalf("expected low %s price %v, got %v", tier, amount, low.Prices[tier])
		}
	}
}

func TestPricingServiceInjectedCountrySet(t *testing.T) {
	svc, err := NewPricingService(PricingServiceDeps{
		HighIncomeCountries: []string{"xk"},
		DefaultCountry:      "xk",
	})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}

	quote := svc.Resolve(context.Background(), PricingSignals{})
	if quote.Country != "XK" {
		t.Fatalf("expected default country XK, got %s", quote.Country)
	}
	if quote.Level != domain.PriceLevelHigh {
		t.Fatalf("expected injected country to be high income, got %s", quote.Level)
	}

	other := svc.Resolve(context.Background(), PricingSignals{TestCountry: "DE"})
	if other.Level != domain.PriceLevelLow {
		t.Fatalf("expected DE outside the injected set to be low, got %s", other.Level)
	}
}

func TestPricingServicePropagatesDevelopmentFlag(t *testing.T) {
	svc, err := NewPricingService(PricingServiceDeps{})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}

	dev := svc.Resolve(context.Background(), PricingSignals{IsDevelopment: true})
	if !dev.IsDevelopment {
		t.Fatal("expected development flag to carry through")
	}
	prod := svc.Resolve(context.Background(), PricingSignals{})
	if prod.IsDevelopment {
		t.Fatal("expected production quote")
	}
}
