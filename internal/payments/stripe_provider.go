package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type checkoutSessionClient interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type paymentIntentClient interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeAPI struct {
	sessions checkoutSessionClient
	intents  paymentIntentClient
}

// StripeProviderConfig configures the StripeProvider. Clients overrides the
// real API clients in tests.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Clients  *stripeAPI
}

// StripeProvider implements the Provider interface over Stripe Checkout.
type StripeProvider struct {
	api    stripeAPI
	clock  func() time.Time
	logger StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)

	api := stripeAPI{}
	switch {
	case cfg.Clients != nil:
		api = *cfg.Clients
	case apiKey != "":
		sc := client.New(apiKey, cfg.Backends)
		api = stripeAPI{sessions: sc.CheckoutSessions, intents: sc.PaymentIntents}
	default:
		return nil, errors.New("stripe: api key is required")
	}
	if api.sessions == nil || api.intents == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:    api,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a Stripe Checkout session in payment mode.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("stripe: at least one line item is required")
	}

	session, err := p.api.sessions.New(checkoutParams(ctx, req))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}
	p.logger(ctx, "stripe.checkout_session.created", map[string]any{
		"session_id": session.ID,
		"intent_id":  intentID,
		"currency":   session.Currency,
	})

	return CheckoutSession{
		ID:          session.ID,
		Provider:    "stripe",
		RedirectURL: session.URL,
		IntentID:    intentID,
		AmountTotal: session.AmountTotal,
		Currency:    strings.ToUpper(string(session.Currency)),
		ExpiresAt:   p.sessionExpiry(session),
	}, nil
}

// sessionExpiry prefers Stripe's own expiry and falls back to the default
// Checkout window when the response omits it.
func (p *StripeProvider) sessionExpiry(session *stripe.CheckoutSession) time.Time {
	if session.ExpiresAt != 0 {
		return time.Unix(session.ExpiresAt, 0).UTC()
	}
	return p.clock().Add(30 * time.Minute)
}

func checkoutParams(ctx context.Context, req CheckoutSessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.Locale != "" {
		// Stripe expects BCP 47 tags in their dashed lowercase form.
		params.Locale = stripe.String(strings.ReplaceAll(strings.ToLower(req.Locale), "_", "-"))
	}

	for _, item := range req.Items {
		currency := item.Currency
		if currency == "" {
			currency = req.Currency
		}
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(currency)),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.Description != "" {
			line.PriceData.ProductData.Description = stripe.String(item.Description)
		}
		params.LineItems = append(params.LineItems, line)
	}

	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
		// Mirror metadata onto the payment intent so webhook consumers see it.
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: params.Metadata,
		}
	}
	return params
}

// LookupPayment fetches the current state of a Stripe Payment Intent.
func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	if strings.TrimSpace(req.IntentID) == "" {
		return PaymentDetails{}, errors.New("stripe: intent id is required")
	}

	intent, err := p.api.intents.Get(req.IntentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return detailsFromIntent(intent), nil
}

func detailsFromIntent(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	details := PaymentDetails{
		Provider: "stripe",
		IntentID: intent.ID,
		Status:   intentStatus(intent),
		Amount:   intent.Amount,
		Captured: intent.Status == stripe.PaymentIntentStatusSucceeded,
	}
	if charge := intent.LatestCharge; charge != nil && (charge.Paid || charge.Captured) {
		t := time.Unix(charge.Created, 0).UTC()
		details.CapturedAt = &t
		details.Captured = true
	}
	details.Currency = strings.ToUpper(string(intent.Currency))
	if details.Currency == "" && intent.LatestCharge != nil {
		details.Currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}
	return details
}

func intentStatus(intent *stripe.PaymentIntent) Status {
	if charge := intent.LatestCharge; charge != nil {
		if charge.Refunded || (charge.Amount > 0 && charge.AmountRefunded >= charge.Amount) {
			return StatusRefunded
		}
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}
