package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingBooked    BookingStatus = "booked"
	BookingCancelled BookingStatus = "cancelled"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DefaultPaymentMethod is recorded when a booking is created without one.
const DefaultPaymentMethod = "mock"

type Trip struct {
	ID             uuid.UUID `json:"id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Date           time.Time `json:"date"`
	Time           string    `json:"time"`
	PriceCents     int64     `json:"price_cents"`
	Duration       string    `json:"duration,omitempty"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats []int     `json:"available_seats"`
	CreatedAt      time.Time `json:"created_at"`
}

// TripDetails holds the descriptive part of a trip that admins may edit.
type TripDetails struct {
	From       string
	To         string
	Date       time.Time
	Time       string
	PriceCents int64
	Duration   string
	TotalSeats int
}

type TripFilter struct {
	From   string
	To     string
	Date   *time.Time
	Limit  int
	Offset int
}

type TripSummary struct {
	ID         uuid.UUID `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Date       time.Time `json:"date"`
	Time       string    `json:"time"`
	PriceCents int64     `json:"price_cents"`
}

type TripAvailability struct {
	TripID    uuid.UUID `json:"trip_id"`
	Total     int       `json:"total"`
	Available int       `json:"available"`
	Booked    int       `json:"booked"`
}

type PaymentInfo struct {
	Method string `json:"method"`
	Paid   bool   `json:"paid"`
	TxnID  string `json:"txn_id"`
}

type Booking struct {
	ID          uuid.UUID     `json:"id"`
	TripID      uuid.UUID     `json:"trip_id"`
	UserID      uuid.UUID     `json:"user_id"`
	Seats       []int         `json:"seats"`
	Status      BookingStatus `json:"status"`
	Payment     PaymentInfo   `json:"payment_info"`
	BookingDate time.Time     `json:"booking_date"`
}

func (b *Booking) Active() bool {
	return b.Status == BookingBooked
}

type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// BookingView is a booking joined with the trip and user it references.
// Trip is nil when the trip has been deleted, User when the user is unknown.
type BookingView struct {
	Booking
	Trip *TripSummary `json:"trip"`
	User *UserSummary `json:"user,omitempty"`
}

type UserBookings struct {
	Upcoming []BookingView `json:"upcoming_bookings"`
	Past     []BookingView `json:"past_bookings"`
}

// SeatAudit reports how a trip's seat space is partitioned between the
// available set and active bookings.
type SeatAudit struct {
	TripID     uuid.UUID    `json:"trip_id"`
	TotalSeats int          `json:"total_seats"`
	Available  []int        `json:"available"`
	Held       []int        `json:"held"`
	Missing    []int        `json:"missing"`
	DoubleHeld []int        `json:"double_held"`
	Overlap    []int        `json:"overlap"`
	OutOfRange []int        `json:"out_of_range"`
	Conflicts  []SeatHolder `json:"conflicts"`
	Consistent bool         `json:"consistent"`
}

// SeatHolder names the active bookings holding a seat the audit flagged.
type SeatHolder struct {
	Seat       int         `json:"seat"`
	BookingIDs []uuid.UUID `json:"booking_ids"`
}

// Identity is the authenticated caller of a core operation.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil
}

func (i Identity) IsAdmin() bool {
	return i.Authenticated() && i.Role == RoleAdmin
}

// CanView reports whether the identity may read the given booking.
func (i Identity) CanView(b *Booking) bool {
	return i.IsAdmin() || (i.Authenticated() && b.UserID == i.UserID)
}
