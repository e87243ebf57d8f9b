package domain

import "time"

// BookingStatus tracks the lifecycle of a scheduling-widget booking.
type BookingStatus string

const (
	// BookingStatusActive indicates a confirmed upcoming booking.
	BookingStatusActive BookingStatus = "active"
	// BookingStatusCanceled indicates the invitee canceled the booking.
	BookingStatusCanceled BookingStatus = "canceled"
)

// Booking mirrors a scheduling-widget event for an invitee. Records are
// created and canceled exclusively through signed widget callbacks.
type Booking struct {
	ID           string
	InviteeURI   string
	InviteeEmail string
	InviteeName  string
	EventType    string
	StartTime    time.Time
	EndTime      time.Time
	Status       BookingStatus
	CanceledAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
