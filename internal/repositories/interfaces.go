package repositories

import (
	"context"
	"time"

	domain "github.com/lumalingua/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Comments() CommentRepository
	Bookings() BookingRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CommentListFilter narrows comment listings.
type CommentListFilter struct {
	PageRef  string
	Statuses []domain.CommentStatus
	Sort     domain.CommentSort
	Pager    domain.Pagination
}

// CommentRepository persists testimonial comments, their likes, and staff replies.
type CommentRepository interface {
	Insert(ctx context.Context, comment domain.Comment) error
	FindByID(ctx context.Context, commentID string) (domain.Comment, error)
	List(ctx context.Context, filter CommentListFilter) (domain.CursorPage[domain.Comment], error)
	// AddLike and RemoveLike are idempotent per user; the returned comment
	// carries the post-transaction like count.
	AddLike(ctx context.Context, commentID, userID string) (domain.Comment, error)
	RemoveLike(ctx context.Context, commentID, userID string) (domain.Comment, error)
	SetReply(ctx context.Context, commentID string, reply *domain.CommentReply) (domain.Comment, error)
	UpdateStatus(ctx context.Context, commentID string, status domain.CommentStatus, moderatorID string, at time.Time) (domain.Comment, error)
}

// BookingRepository persists scheduling-widget bookings keyed by invitee URI.
type BookingRepository interface {
	Upsert(ctx context.Context, booking domain.Booking) (domain.Booking, error)
	CancelByInviteeURI(ctx context.Context, inviteeURI string, canceledAt time.Time) (domain.Booking, error)
	ListUpcomingByEmail(ctx context.Context, email string, from time.Time, pager domain.Pagination) (domain.CursorPage[domain.Booking], error)
}

// HealthRepository aggregates dependency probes for the readiness endpoint.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
