package reservation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidSeats     = errors.New("invalid seat selection")
	ErrTripNotFound     = errors.New("trip not found")
	ErrSeatsUnavailable = errors.New("some seats are unavailable")
	ErrRateLimited      = errors.New("rate limited")
)

// SeatsUnavailableError names the requested seats that were already taken.
type SeatsUnavailableError struct {
	Seats []int
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("some or all seats are unavailable: %v", e.Seats)
}

func (e *SeatsUnavailableError) Unwrap() error {
	return ErrSeatsUnavailable
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
