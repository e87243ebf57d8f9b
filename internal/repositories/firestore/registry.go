package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/lumalingua/api/internal/platform/firestore"
	"github.com/lumalingua/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider
	comments *CommentRepository
	bookings *BookingRepository
}

// NewRegistry wires every repository against the shared Firestore provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	comments, err := NewCommentRepository(provider)
	if err != nil {
		return nil, err
	}
	bookings, err := NewBookingRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		comments: comments,
		bookings: bookings,
	}, nil
}

// Comments returns the comment repository.
func (r *Registry) Comments() repositories.CommentRepository { return r.comments }

// Bookings returns the booking repository.
func (r *Registry) Bookings() repositories.BookingRepository { return r.bookings }

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
