package admin

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTrip    = errors.New("invalid trip")
	ErrTripNotFound   = errors.New("trip not found")
	ErrTripConflict   = errors.New("trip already exists")
	ErrSeatsBelowSold = errors.New("total seats below seats already sold")
)

// SeatsBelowSoldError is returned when an edit would drop seats that are
// held by active bookings.
type SeatsBelowSoldError struct {
	TotalSeats int
	Seats      []int
}

func (e *SeatsBelowSoldError) Error() string {
	return fmt.Sprintf("cannot set total seats to %d: seats %v are sold", e.TotalSeats, e.Seats)
}

func (e *SeatsBelowSoldError) Unwrap() error {
	return ErrSeatsBelowSold
}
