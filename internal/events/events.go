// Package events publishes booking lifecycle events for other services.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
)

const (
	TypeBookingCreated   = "booking.created"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingPaid      = "booking.paid"
)

// BookingEvent is the message body published for every booking change.
type BookingEvent struct {
	Type       string               `json:"type"`
	BookingID  uuid.UUID            `json:"booking_id"`
	TripID     uuid.UUID            `json:"trip_id"`
	UserID     uuid.UUID            `json:"user_id"`
	Seats      []int                `json:"seats"`
	Status     domain.BookingStatus `json:"status"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func NewBookingEvent(kind string, b *domain.Booking) BookingEvent {
	return BookingEvent{
		Type:       kind,
		BookingID:  b.ID,
		TripID:     b.TripID,
		UserID:     b.UserID,
		Seats:      append([]int{}, b.Seats...),
		Status:     b.Status,
		OccurredAt: time.Now().UTC(),
	}
}

func (e BookingEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	PublishBooking(ctx context.Context, ev BookingEvent) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishBooking(context.Context, BookingEvent) error { return nil }
func (Nop) Close() error                                       { return nil }
