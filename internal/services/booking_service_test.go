package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/lumalingua/api/internal/domain"
)

type memoryBookingRepo struct {
	bookings  map[string]domain.Booking
	lastFrom  time.Time
	lastEmail string
}

func newMemoryBookingRepo() *memoryBookingRepo {
	return &memoryBookingRepo{bookings: make(map[string]domain.Booking)}
}

func (m *memoryBookingRepo) Upsert(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	existing, ok := m.bookings[booking.InviteeURI]
	if ok {
		booking.CreatedAt = existing.CreatedAt
	}
	booking.Status = domain.BookingStatusActive
	booking.CanceledAt = nil
	m.bookings[booking.InviteeURI] = booking
	return booking, nil
}

func (m *memoryBookingRepo) CancelByInviteeURI(_ context.Context, inviteeURI string, canceledAt time.Time) (domain.Booking, error) {
	booking, ok := m.bookings[inviteeURI]
	if !ok {
		return domain.Booking{}, repoError{message: "not found", notFound: true}
	}
	booking.Status = domain.BookingStatusCanceled
	booking.CanceledAt = &canceledAt
	m.bookings[inviteeURI] = booking
	return booking, nil
}

func (m *memoryBookingRepo) ListUpcomingByEmail(_ context.Context, email string, from time.Time, _ domain.Pagination) (domain.CursorPage[domain.Booking], error) {
	m.lastEmail = email
	m.lastFrom = from
	var items []domain.Booking
	for _, booking := range m.bookings {
		if booking.InviteeEmail != email || booking.Status != domain.BookingStatusActive {
			continue
		}
		if booking.StartTime.Before(from) {
			continue
		}
		items = append(items, booking)
	}
	return domain.CursorPage[domain.Booking]{Items: items}, nil
}

func newTestBookingService(t *testing.T, repo *memoryBookingRepo, now time.Time) BookingService {
	t.Helper()
	svc, err := NewBookingService(BookingServiceDeps{
		Bookings: repo,
		Clock: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatalf("new booking service: %v", err)
	}
	return svc
}

func TestBookingServiceCreatedEventUpserts(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := newMemoryBookingRepo()
	svc := newTestBookingService(t, repo, now)

	cmd := BookingWebhookCommand{
		Event:        BookingEventInviteeCreated,
		InviteeURI:   "https://widget.example.com/invitees/abc",
		InviteeEmail: "Amira@Example.com",
		InviteeName:  "Amira",
		EventType:    "trial-lesson",
		StartTime:    now.Add(48 * time.Hour),
		EndTime:      now.Add(49 * time.Hour),
	}
	if err := svc.HandleWebhookEvent(context.Background(), cmd); err != nil {
		t.Fatalf("handle created: %v", err)
	}

	booking, ok := repo.bookings[cmd.InviteeURI]
	if !ok {
		t.Fatal("expected booking to be stored")
	}
	if booking.InviteeEmail != "amira@example.com" {
		t.Fatalf("expected lowercased email, got %s", booking.InviteeEmail)
	}
	if booking.Status != domain.BookingStatusActive {
		t.Fatalf("expected active booking, got %s", booking.Status)
	}

	// Webhook retries replay the same invitee URI without duplicating records.
	if err := svc.HandleWebhookEvent(context.Background(), cmd); err != nil {
		t.Fatalf("handle retry: %v", err)
	}
	if len(repo.bookings) != 1 {
		t.Fatalf("expected a single booking, got %d", len(repo.bookings))
	}
}

func TestBookingServiceCanceledEventIsIdempotent(t *testing.T) {
	now := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	repo := newMemoryBookingRepo()
	svc := newTestBookingService(t, repo, now)

	created := BookingWebhookCommand{
		Event:        BookingEventInviteeCreated,
		InviteeURI:   "https://widget.example.com/invitees/abc",
		InviteeEmail: "amira@example.com",
		StartTime:    now.Add(24 * time.Hour),
		EndTime:      now.Add(25 * time.Hour),
	}
	if err := svc.HandleWebhookEvent(context.Background(), created); err != nil {
		t.Fatalf("handle created: %v", err)
	}

	canceled := BookingWebhookCommand{
		Event:      BookingEventInviteeCanceled,
		InviteeURI: created.InviteeURI,
	}
	if err := svc.HandleWebhookEvent(context.Background(), canceled); err != nil {
		t.Fatalf("handle canceled: %v", err)
	}

	booking := repo.bookings[created.InviteeURI]
	if booking.Status != domain.BookingStatusCanceled {
		t.Fatalf("expected canceled booking, got %s", booking.Status)
	}
	if booking.CanceledAt == nil || !booking.CanceledAt.Equal(now) {
		t.Fatalf("expected canceledAt %s, got %+v", now, booking.CanceledAt)
	}

	// Cancels for unknown invitees are treated as already settled.
	unknown := BookingWebhookCommand{
		Event:      BookingEventInviteeCanceled,
		InviteeURI: "https://widget.example.com/invitees/missing",
	}
	if err := svc.HandleWebhookEvent(context.Background(), unknown); err != nil {
		t.Fatalf("expected unknown cancel to succeed, got %v", err)
	}
}

func TestBookingServiceRejectsMalformedEvents(t *testing.T) {
	now := time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC)
	svc := newTestBookingService(t, newMemoryBookingRepo(), now)

	cases := map[string]BookingWebhookCommand{
		"missing invitee uri": {Event: BookingEventInviteeCreated},
		"unknown event": {
			Event:      "invitee.rescheduled",
			InviteeURI: "https://widget.example.com/invitees/abc",
		},
		"missing email": {
			Event:      BookingEventInviteeCreated,
			InviteeURI: "https://widget.example.com/invitees/abc",
			StartTime:  now.Add(time.Hour),
			EndTime:    now.Add(2 * time.Hour),
		},
		"end before start": {
			Event:        BookingEventInviteeCreated,
			InviteeURI:   "https://widget.example.com/invitees/abc",
			InviteeEmail: "a@example.com",
			StartTime:    now.Add(2 * time.Hour),
			EndTime:      now.Add(time.Hour),
		},
	}

	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			if err := svc.HandleWebhookEvent(context.Background(), cmd); !errors.Is(err, ErrBookingInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestBookingServiceListUpcoming(t *testing.T) {
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, time.UTC)
	repo := newMemoryBookingRepo()
	svc := newTestBookingService(t, repo, now)

	for _, cmd := range []BookingWebhookCommand{
		{
			Event:        BookingEventInviteeCreated,
			InviteeURI:   "https://widget.example.com/invitees/future",
			InviteeEmail: "amira@example.com",
			StartTime:    now.Add(24 * time.Hour),
			EndTime:      now.Add(25 * time.Hour),
		},
		{
			Event:        BookingEventInviteeCreated,
			InviteeURI:   "https://widget.example.com/invitees/other",
			InviteeEmail: "someone@example.com",
			StartTime:    now.Add(24 * time.Hour),
			EndTime:      now.Add(25 * time.Hour),
		},
	} {
		if err := svc.HandleWebhookEvent(context.Background(), cmd); err != nil {
			t.Fatalf("seed webhook: %v", err)
		}
	}

	page, err := svc.ListUpcoming(context.Background(), ListBookingsCommand{Email: "  Amira@Example.com "})
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(page.Items))
	}
	if repo.lastEmail != "amira@example.com" {
		t.Fatalf("expected normalized email query, got %s", repo.lastEmail)
	}
	if !repo.lastFrom.Equal(now) {
		t.Fatalf("expected from %s, got %s", now, repo.lastFrom)
	}

	if _, err := svc.ListUpcoming(context.Background(), ListBookingsCommand{}); !errors.Is(err, ErrBookingInvalidInput) {
		t.Fatalf("expected invalid input for missing email, got %v", err)
	}
}
