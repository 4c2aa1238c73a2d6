package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrSeatsUnavailable = errors.New("some seats unavailable")
	ErrTxAborted        = errors.New("transaction aborted by concurrent update")
)

// SeatsUnavailableError names the requested seats that were not available.
type SeatsUnavailableError struct {
	Seats []int
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %v", e.Seats)
}

func (e *SeatsUnavailableError) Unwrap() error {
	return ErrSeatsUnavailable
}
