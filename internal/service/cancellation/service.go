package cancellation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/repository"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service/notify"
	"github.com/kirinyoku/tripgo/internal/uow"
)

type Service struct {
	notify *notify.Notifier
	uow    *uow.UoW
}

func New(store repository.Store, n *notify.Notifier) *Service {
	return &Service{
		notify: n,
		uow:    uow.NewUoW(store),
	}
}

// Cancel marks a booking cancelled and returns its seats to the trip in the
// same transaction. The booking row is locked first, so a concurrent second
// cancel waits and then sees the cancelled status instead of releasing the
// seats twice. A booking whose trip was deleted is still cancelled.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: the caller; must be an administrator.
//   - bookingID: ID of the booking to cancel.
//
// Returns:
//   - *domain.Booking: the booking with status cancelled.
//   - error: domain.ErrUnauthenticated or domain.ErrForbidden.
//   - error: cancellation.ErrBookingNotFound if the booking does not exist.
//   - error: cancellation.ErrAlreadyCancelled if it was cancelled before.
func (s *Service) Cancel(ctx context.Context, id domain.Identity, bookingID uuid.UUID) (*domain.Booking, error) {
	const op = "service.cancellation.Cancel"

	if err := id.RequireAdmin(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var booking *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if !b.Active() {
			return ErrAlreadyCancelled
		}

		if err := tx.Bookings().UpdateStatus(ctx, b.ID, domain.BookingCancelled); err != nil {
			return err
		}
		b.Status = domain.BookingCancelled

		tripExists := true
		if _, err := tx.Trips().GetForUpdate(ctx, b.TripID); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			tripExists = false
		}

		if tripExists {
			if err := tx.Trips().AddSeats(ctx, b.TripID, b.Seats); err != nil {
				return err
			}
		}

		booking = b

		after(func(ctx context.Context) {
			if tripExists {
				s.notify.TripChanged(ctx, b.TripID, redisrepo.TripChangeSeats)
			}
			s.notify.Booking(ctx, events.TypeBookingCancelled, b)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return booking, nil
}
