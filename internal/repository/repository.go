package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
)

// Trips is the trip inventory store.
type Trips interface {
	Create(ctx context.Context, trip *domain.Trip) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Trip, error)
	// GetForUpdate loads a trip and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Trip, error)
	Search(ctx context.Context, filter domain.TripFilter) ([]domain.Trip, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, details domain.TripDetails) error
	Delete(ctx context.Context, id uuid.UUID) error

	// RemoveSeats removes exactly seats from the available set, or nothing
	// at all with a *SeatsUnavailableError if any of them is taken.
	RemoveSeats(ctx context.Context, id uuid.UUID, seats []int) error
	// AddSeats unions seats back into the available set. Seats already
	// available or outside [1, total_seats] are ignored.
	AddSeats(ctx context.Context, id uuid.UUID, seats []int) error
	// Initialize sets total seats to total and every seat available.
	Initialize(ctx context.Context, id uuid.UUID, total int) error
	SetInventory(ctx context.Context, id uuid.UUID, total int, available []int) error
}

// Bookings is the booking record store.
type Bookings interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error
	UpdatePayment(ctx context.Context, id uuid.UUID, p domain.PaymentInfo) error
	ListActiveByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Booking, error)
	// ActiveSeats returns every seat held by an active booking of the trip,
	// repeats included.
	ActiveSeats(ctx context.Context, tripID uuid.UUID) ([]int, error)
}

// Queries serves read projections that join bookings with trips and users.
type Queries interface {
	GetBookingView(ctx context.Context, id uuid.UUID) (*domain.BookingView, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.BookingView, error)
	ListBookings(ctx context.Context, limit, offset int) ([]domain.BookingView, error)
}

// Tx is the set of stores bound to one transaction.
type Tx interface {
	Trips() Trips
	Bookings() Bookings
}

type TxOptions struct {
	// ReadOnly asks for a read-only transaction over a consistent snapshot.
	ReadOnly bool
}

// Store gives non-transactional access to the stores and runs transactions.
// fn's changes are committed only if it returns nil.
type Store interface {
	Tx
	Queries() Queries
	RunTx(ctx context.Context, opts *TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
