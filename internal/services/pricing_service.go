package services

import (
	"context"
	"strings"

	domain "github.com/lumalingua/api/internal/domain"
)

const (
	pricingCurrency = "EUR"
	pricingSymbol   = "€"
)

// PricingServiceDeps bundles the configuration required to construct a PricingService.
type PricingServiceDeps struct {
	HighIncomeCountries []string
	DefaultCountry      string
}

type pricingService struct {
	highIncome     map[string]struct{}
	defaultCountry string
	highPrices     domain.PriceTable
	lowPrices      domain.PriceTable
}

// NewPricingService builds a resolver over the injected high-income country set.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	countries := deps.HighIncomeCountries
	if len(countries) == 0 {
		countries = domain.DefaultHighIncomeCountries()
	}
	highIncome := make(map[string]struct{}, len(countries))
	for _, code := range countries {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		highIncome[code] = struct{}{}
	}

	defaultCountry := strings.ToUpper(strings.TrimSpace(deps.DefaultCountry))
	if defaultCountry == "" {
		defaultCountry = "ES"
	}

	return &pricingService{
		highIncome:     highIncome,
		defaultCountry: defaultCountry,
		highPrices: domain.PriceTable{
			domain.TierIndividualStandard:     30,
			domain.TierIndividualConversation: 20,
			domain.TierGroup:                  10,
		},
		lowPrices: domain.PriceTable{
			domain.TierIndividualStandard:     15,
			domain.TierIndividualConversation: 10,
			domain.TierGroup:                  4.5,
		},
	}, nil
}

// Resolve never fails: if every signal is absent the default country applies.
func (s *pricingService) Resolve(_ context.Context, signals PricingSignals) PricingQuote {
	country := s.resolveCountry(signals)

	level := domain.PriceLevelLow
	prices := s.lowPrices
	if _, ok := s.highIncome[country]; ok {
		level = domain.PriceLevelHigh
		prices = s.highPrices
	}

	table := make(domain.PriceTable, len(prices))
	for tier, amount := range prices {
		table[tier] = amount
	}

	return PricingQuote{
		Country:       country,
		Level:         level,
		Currency:      pricingCurrency,
		Symbol:        pricingSymbol,
		Prices:        table,
		IsDevelopment: signals.IsDevelopment,
	}
}

func (s *pricingService) resolveCountry(signals PricingSignals) string {
	for _, candidate := range []string{signals.TestCountry, signals.EdgeCountry, signals.PlatformCountry} {
		if code := strings.ToUpper(strings.TrimSpace(candidate)); code != "" {
			return code
		}
	}
	return s.defaultCountry
}
