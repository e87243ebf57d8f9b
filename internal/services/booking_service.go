package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/repositories"
)

const (
	// BookingEventInviteeCreated is the widget callback for a new booking.
	BookingEventInviteeCreated = "invitee.created"
	// BookingEventInviteeCanceled is the widget callback for a cancellation.
	BookingEventInviteeCanceled = "invitee.canceled"
)

var (
	// ErrBookingInvalidInput indicates validation failures for booking operations.
	ErrBookingInvalidInput = errors.New("booking: invalid input")
	// ErrBookingNotFound indicates a booking could not be located.
	ErrBookingNotFound = errors.New("booking: not found")
)

// BookingServiceDeps bundles collaborators required to construct a BookingService.
type BookingServiceDeps struct {
	Bookings repositories.BookingRepository
	Clock    func() time.Time
}

type bookingService struct {
	bookings repositories.BookingRepository
	clock    func() time.Time
}

// NewBookingService wires dependencies into a concrete BookingService implementation.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	if deps.Bookings == nil {
		return nil, errors.New("booking service: booking repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &bookingService{
		bookings: deps.Bookings,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// HandleWebhookEvent applies a signed widget callback. Replays are safe:
// creates upsert on the invitee URI and cancels are idempotent.
func (s *bookingService) HandleWebhookEvent(ctx context.Context, cmd BookingWebhookCommand) error {
	if strings.TrimSpace(cmd.InviteeURI) == "" {
		return fmt.Errorf("%w: invitee uri is required", ErrBookingInvalidInput)
	}

	switch cmd.Event {
	case BookingEventInviteeCreated:
		return s.applyCreated(ctx, cmd)
	case BookingEventInviteeCanceled:
		return s.applyCanceled(ctx, cmd)
	default:
		return fmt.Errorf("%w: unsupported event %q", ErrBookingInvalidInput, cmd.Event)
	}
}

func (s *bookingService) applyCreated(ctx context.Context, cmd BookingWebhookCommand) error {
	email := strings.ToLower(strings.TrimSpace(cmd.InviteeEmail))
	if email == "" {
		return fmt.Errorf("%w: invitee email is required", ErrBookingInvalidInput)
	}
	if cmd.StartTime.IsZero() || cmd.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end times are required", ErrBookingInvalidInput)
	}
	if !cmd.EndTime.After(cmd.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrBookingInvalidInput)
	}

	_, err := s.bookings.Upsert(ctx, domain.Booking{
		InviteeURI:   cmd.InviteeURI,
		InviteeEmail: email,
		InviteeName:  strings.TrimSpace(cmd.InviteeName),
		EventType:    strings.TrimSpace(cmd.EventType),
		StartTime:    cmd.StartTime.UTC(),
		EndTime:      cmd.EndTime.UTC(),
		Status:       domain.BookingStatusActive,
	})
	if err != nil {
		return s.mapBookingError(err)
	}
	return nil
}

func (s *bookingService) applyCanceled(ctx context.Context, cmd BookingWebhookCommand) error {
	_, err := s.bookings.CancelByInviteeURI(ctx, cmd.InviteeURI, s.clock())
	if err != nil {
		// Cancels may arrive before or without a matching create; treat
		// unknown invitees as already settled.
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return s.mapBookingError(err)
	}
	return nil
}

func (s *bookingService) ListUpcoming(ctx context.Context, cmd ListBookingsCommand) (domain.CursorPage[Booking], error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return domain.CursorPage[Booking]{}, fmt.Errorf("%w: email is required", ErrBookingInvalidInput)
	}

	page, err := s.bookings.ListUpcomingByEmail(ctx, email, s.clock(), cmd.Pagination)
	if err != nil {
		return domain.CursorPage[Booking]{}, s.mapBookingError(err)
	}
	return page, nil
}

func (s *bookingService) mapBookingError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrBookingNotFound
	}
	return err
}
