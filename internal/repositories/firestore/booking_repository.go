package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lumalingua/api/internal/domain"
	pfirestore "github.com/lumalingua/api/internal/platform/firestore"
	"github.com/lumalingua/api/internal/repositories"
)

const bookingCollection = "bookings"

// BookingRepository persists scheduling-widget bookings. Documents are keyed
// by a digest of the invitee URI so webhook retries land on the same record.
type BookingRepository struct {
	provider *pfirestore.Provider
}

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider) (*BookingRepository, error) {
	if provider == nil {
		return nil, errors.New("booking repository requires firestore provider")
	}
	return &BookingRepository{provider: provider}, nil
}

// Upsert creates or refreshes the booking for its invitee URI.
func (r *BookingRepository) Upsert(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Booking{}, err
	}

	inviteeURI := strings.TrimSpace(booking.InviteeURI)
	if inviteeURI == "" {
		return domain.Booking{}, errors.New("booking repository: invitee uri is required")
	}

	docID := bookingDocID(inviteeURI)
	now := time.Now().UTC()

	var result domain.Booking
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := coll.Doc(docID)
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		stored := booking
		stored.ID = docID
		stored.Status = domain.BookingStatusActive
		stored.CanceledAt = nil
		stored.UpdatedAt = now
		if snap != nil && snap.Exists() {
			existing, err := decodeBookingDocument(snap)
			if err != nil {
				return err
			}
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = now
		}

		if err := tx.Set(ref, encodeBookingDocument(stored)); err != nil {
			return err
		}
		result = stored
		return nil
	})
	if err != nil {
		return domain.Booking{}, pfirestore.WrapError("bookings.upsert", err)
	}
	return result, nil
}

// CancelByInviteeURI marks the booking canceled. Missing bookings surface as not-found.
func (r *BookingRepository) CancelByInviteeURI(ctx context.Context, inviteeURI string, canceledAt time.Time) (domain.Booking, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Booking{}, err
	}

	uri := strings.TrimSpace(inviteeURI)
	if uri == "" {
		return domain.Booking{}, errors.New("booking repository: invitee uri is required")
	}

	docID := bookingDocID(uri)
	at := canceledAt.UTC()

	var result domain.Booking
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := coll.Doc(docID)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		booking, err := decodeBookingDocument(snap)
		if err != nil {
			return err
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.BookingStatusCanceled)},
			{Path: "canceledAt", Value: at},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return err
		}

		booking.Status = domain.BookingStatusCanceled
		booking.CanceledAt = &at
		booking.UpdatedAt = at
		result = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, pfirestore.WrapError("bookings.cancel", err)
	}
	return result, nil
}

// ListUpcomingByEmail returns active bookings starting at or after from,
// soonest first, with cursor pagination.
func (r *BookingRepository) ListUpcomingByEmail(ctx context.Context, email string, from time.Time, pager domain.Pagination) (domain.CursorPage[domain.Booking], error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.CursorPage[domain.Booking]{}, err
	}

	address := strings.ToLower(strings.TrimSpace(email))
	if address == "" {
		return domain.CursorPage[domain.Booking]{}, errors.New("booking repository: email is required")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}

	query := coll.
		Where("inviteeEmail", "==", address).
		Where("status", "==", string(domain.BookingStatusActive)).
		Where("startTime", ">=", from.UTC()).
		OrderBy("startTime", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc)

	var fetchLimit int
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeBookingToken(token)
		if err != nil {
			return domain.CursorPage[domain.Booking]{}, fmt.Errorf("bookings.list: invalid page token: %w", err)
		}
		query = query.StartAfter(tokenTime, tokenID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var bookings []domain.Booking
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Booking]{}, pfirestore.WrapError("bookings.list", err)
		}
		booking, err := decodeBookingDocument(snap)
		if err != nil {
			return domain.CursorPage[domain.Booking]{}, err
		}
		bookings = append(bookings, booking)
	}

	nextToken := ""
	if limit > 0 && len(bookings) == fetchLimit {
		last := bookings[len(bookings)-1]
		nextToken = encodeBookingToken(last.StartTime, last.ID)
		bookings = bookings[:len(bookings)-1]
	}

	return domain.CursorPage[domain.Booking]{
		Items:         bookings,
		NextPageToken: nextToken,
	}, nil
}

func (r *BookingRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("booking repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(bookingCollection), nil
}

type bookingDocument struct {
	InviteeURI   string     `firestore:"inviteeUri"`
	InviteeEmail string     `firestore:"inviteeEmail"`
	InviteeName  string     `firestore:"inviteeName"`
	EventType    string     `firestore:"eventType"`
	StartTime    time.Time  `firestore:"startTime"`
	EndTime      time.Time  `firestore:"endTime"`
	Status       string     `firestore:"status"`
	CanceledAt   *time.Time `firestore:"canceledAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

func encodeBookingDocument(booking domain.Booking) bookingDocument {
	return bookingDocument{
		InviteeURI:   booking.InviteeURI,
		InviteeEmail: strings.ToLower(strings.TrimSpace(booking.InviteeEmail)),
		InviteeName:  booking.InviteeName,
		EventType:    booking.EventType,
		StartTime:    booking.StartTime.UTC(),
		EndTime:      booking.EndTime.UTC(),
		Status:       string(booking.Status),
		CanceledAt:   booking.CanceledAt,
		CreatedAt:    booking.CreatedAt.UTC(),
		UpdatedAt:    booking.UpdatedAt.UTC(),
	}
}

func decodeBookingDocument(snapshot *firestore.DocumentSnapshot) (domain.Booking, error) {
	var doc bookingDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Booking{}, fmt.Errorf("decode booking %s: %w", snapshot.Ref.ID, err)
	}
	return domain.Booking{
		ID:           snapshot.Ref.ID,
		InviteeURI:   doc.InviteeURI,
		InviteeEmail: doc.InviteeEmail,
		InviteeName:  doc.InviteeName,
		EventType:    doc.EventType,
		StartTime:    doc.StartTime,
		EndTime:      doc.EndTime,
		Status:       domain.BookingStatus(doc.Status),
		CanceledAt:   doc.CanceledAt,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

func bookingDocID(inviteeURI string) string {
	sum := sha256.Sum256([]byte(inviteeURI))
	return hex.EncodeToString(sum[:16])
}

func encodeBookingToken(startTime time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", startTime.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeBookingToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

// Ensure interface compliance.
var _ repositories.BookingRepository = (*BookingRepository)(nil)
