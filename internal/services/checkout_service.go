package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/payments"
)

var (
	// ErrCheckoutInvalidInput indicates validation failures for checkout operations.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutProviderFailure signals the PSP rejected or failed the request.
	ErrCheckoutProviderFailure = errors.New("checkout: provider failure")
)

const checkoutMaxQuantity = 50

var tierDisplayNames = map[domain.ClassTier]string{
	domain.TierIndividualStandard:     "Individual lesson",
	domain.TierIndividualConversation: "Conversation practice lesson",
	domain.TierGroup:                  "Group class seat",
}

// CheckoutServiceDeps bundles collaborators required to construct a CheckoutService.
type CheckoutServiceDeps struct {
	Pricing  PricingService
	Provider payments.Provider
}

type checkoutService struct {
	pricing  PricingService
	provider payments.Provider
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing service is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	return &checkoutService{
		pricing:  deps.Pricing,
		provider: deps.Provider,
	}, nil
}

// CreateCheckoutSession prices the requested tier with the same resolver that
// served the page, so the charged amount always matches the displayed price.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutCommand) (CheckoutResult, error) {
	if err := validateCheckoutCommand(cmd); err != nil {
		return CheckoutResult{}, err
	}

	quote := s.pricing.Resolve(ctx, cmd.Pricing)
	unitPrice, ok := quote.Prices[cmd.Tier]
	if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: unknown tier %q", ErrCheckoutInvalidInput, cmd.Tier)
	}
	unitAmount := int64(math.Round(unitPrice * 100))

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		Currency:      quote.Currency,
		CustomerEmail: strings.TrimSpace(cmd.Email),
		SuccessURL:    cmd.SuccessURL,
		CancelURL:     cmd.CancelURL,
		Locale:        cmd.Locale,
		Metadata: map[string]string{
			"tier":    string(cmd.Tier),
			"country": quote.Country,
			"level":   string(quote.Level),
			"userRef": cmd.UserID,
		},
		Items: []payments.CheckoutLineItem{
			{
				Name:     tierDisplayNames[cmd.Tier],
				Quantity: cmd.Quantity,
				Amount:   unitAmount,
				Currency: quote.Currency,
			},
		},
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %w", ErrCheckoutProviderFailure, err)
	}

	return CheckoutResult{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		IntentID:    session.IntentID,
		Amount:      unitAmount * cmd.Quantity,
		Currency:    quote.Currency,
	}, nil
}

func (s *checkoutService) LookupPayment(ctx context.Context, intentID string) (PaymentStatusResult, error) {
	if strings.TrimSpace(intentID) == "" {
		return PaymentStatusResult{}, fmt.Errorf("%w: intent id is required", ErrCheckoutInvalidInput)
	}

	details, err := s.provider.LookupPayment(ctx, payments.LookupRequest{IntentID: intentID})
	if err != nil {
		return PaymentStatusResult{}, fmt.Errorf("%w: %w", ErrCheckoutProviderFailure, err)
	}

	return PaymentStatusResult{
		IntentID: details.IntentID,
		Status:   string(details.Status),
		Amount:   details.Amount,
		Currency: details.Currency,
	}, nil
}

func validateCheckoutCommand(cmd CreateCheckoutCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if _, ok := tierDisplayNames[cmd.Tier]; !ok {
		return fmt.Errorf("%w: unknown tier %q", ErrCheckoutInvalidInput, cmd.Tier)
	}
	if cmd.Quantity < 1 || cmd.Quantity > checkoutMaxQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d", ErrCheckoutInvalidInput, checkoutMaxQuantity)
	}
	if !isAbsoluteURL(cmd.SuccessURL) || !isAbsoluteURL(cmd.CancelURL) {
		return fmt.Errorf("%w: success and cancel urls must be absolute http(s) urls", ErrCheckoutInvalidInput)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://")
}
