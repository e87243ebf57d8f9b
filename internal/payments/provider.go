// Package payments isolates the payment service provider behind a narrow
// interface; services and handlers never see PSP SDK types.
package payments

import (
	"context"
	"time"
)

// Provider is the contract PSP adapters implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Status is a PSP-independent payment state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// CheckoutSessionRequest describes the hosted checkout session to create.
// Metadata is attached to both the session and its payment intent.
type CheckoutSessionRequest struct {
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// CheckoutLineItem is one priced entry in a checkout session. Amount is in
// the currency's minor unit.
type CheckoutLineItem struct {
	Name        string
	Description string
	Quantity    int64
	Amount      int64
	Currency    string
}

// CheckoutSession is what the client needs to continue a hosted checkout.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	AmountTotal int64
	Currency    string
	ExpiresAt   time.Time
}

// LookupRequest identifies the payment intent to reconcile.
type LookupRequest struct {
	IntentID string
}

// PaymentDetails is the normalised view of a payment's current state.
type PaymentDetails struct {
	Provider   string
	IntentID   string
	Status     Status
	Amount     int64
	Currency   string
	Captured   bool
	CapturedAt *time.Time
}
