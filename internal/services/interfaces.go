package services

import (
	"context"
	"time"

	domain "github.com/lumalingua/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Comment            = domain.Comment
	CommentReply       = domain.CommentReply
	CommentStatus      = domain.CommentStatus
	CommentSort        = domain.CommentSort
	PricingQuote       = domain.PricingQuote
	ClassTier          = domain.ClassTier
	SessionRecord      = domain.SessionRecord
	Booking            = domain.Booking
	SystemHealthReport = domain.SystemHealthReport
)

// PricingService resolves the per-request pricing document from request signals.
type PricingService interface {
	Resolve(ctx context.Context, signals PricingSignals) PricingQuote
}

// SessionService owns the trusted session cookie lifecycle: issuance after
// provider verification, and re-verification of the embedded token on read.
type SessionService interface {
	Issue(ctx context.Context, cmd IssueSessionCommand) (IssuedSession, error)
	Read(ctx context.Context, envelope string) (SessionRecord, error)
}

// CommentService coordinates testimonial lifecycle and moderation workflows.
type CommentService interface {
	Create(ctx context.Context, cmd CreateCommentCommand) (Comment, error)
	List(ctx context.Context, query ListCommentsQuery) (domain.CursorPage[Comment], error)
	Like(ctx context.Context, cmd CommentLikeCommand) (Comment, error)
	Unlike(ctx context.Context, cmd CommentLikeCommand) (Comment, error)
	Moderate(ctx context.Context, cmd ModerateCommentCommand) (Comment, error)
	StoreReply(ctx context.Context, cmd StoreCommentReplyCommand) (Comment, error)
}

// CheckoutService coordinates PSP session creation and payment status lookups.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutCommand) (CheckoutResult, error)
	LookupPayment(ctx context.Context, intentID string) (PaymentStatusResult, error)
}

// NewsletterService validates and forwards signup requests to the hosted list provider.
type NewsletterService interface {
	Subscribe(ctx context.Context, cmd SubscribeCommand) error
}

// BookingService ingests scheduling-widget callbacks and serves upcoming bookings.
type BookingService interface {
	HandleWebhookEvent(ctx context.Context, cmd BookingWebhookCommand) error
	ListUpcoming(ctx context.Context, cmd ListBookingsCommand) (domain.CursorPage[Booking], error)
}

// SystemService aggregates utility surfaces such as dependency health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

// PricingSignals carries the request attributes the pricing resolver inspects.
type PricingSignals struct {
	TestCountry     string
	EdgeCountry     string
	PlatformCountry string
	IsDevelopment   bool
}

type IssueSessionCommand struct {
	IDToken string
}

// IssuedSession bundles the signed envelope with its claims and expiry so the
// handler can set the cookie without re-encoding.
type IssuedSession struct {
	Record   SessionRecord
	Envelope string
	Expires  time.Time
}

type CreateCommentCommand struct {
	PageRef       string
	AuthorID      string
	AuthorName    string
	AuthorPicture string
	Body          string
}

type ListCommentsQuery struct {
	PageRef         string
	Sort            CommentSort
	IncludePending  bool
	IncludeRejected bool
	Pagination      Pagination
}

type CommentLikeCommand struct {
	CommentID string
	UserID    string
}

type ModerateCommentCommand struct {
	CommentID string
	ActorID   string
	Status    CommentStatus
}

type StoreCommentReplyCommand struct {
	CommentID string
	ActorID   string
	Message   string
}

type CreateCheckoutCommand struct {
	UserID     string
	Email      string
	Tier       ClassTier
	Quantity   int64
	SuccessURL string
	CancelURL  string
	Locale     string
	Pricing    PricingSignals
}

// CheckoutResult is the PSP session surface returned to the client.
type CheckoutResult struct {
	SessionID   string
	RedirectURL string
	IntentID    string
	Amount      int64
	Currency    string
}

// PaymentStatusResult normalises PSP payment state for the status endpoint.
type PaymentStatusResult struct {
	IntentID string
	Status   string
	Amount   int64
	Currency string
}

type SubscribeCommand struct {
	Email  string
	Locale string
}

type BookingWebhookCommand struct {
	Event        string
	InviteeURI   string
	InviteeEmail string
	InviteeName  string
	EventType    string
	StartTime    time.Time
	EndTime      time.Time
}

type ListBookingsCommand struct {
	Email      string
	Pagination Pagination
}
