package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
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

// CreateTrip creates a trip with every seat available.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: the caller; must be an administrator.
//   - d: route, schedule, price and seat count.
//
// Returns:
//   - *domain.Trip: the created trip.
//   - error: admin.ErrInvalidTrip if d is incomplete.
//   - error: admin.ErrTripConflict if the generated ID already exists.
func (s *Service) CreateTrip(ctx context.Context, id domain.Identity, d domain.TripDetails) (*domain.Trip, error) {
	const op = "service.admin.CreateTrip"

	if err := id.RequireAdmin(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	d, err := normalize(d)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	trip := &domain.Trip{
		ID:             uuid.New(),
		From:           d.From,
		To:             d.To,
		Date:           d.Date,
		Time:           d.Time,
		PriceCents:     d.PriceCents,
		Duration:       d.Duration,
		TotalSeats:     d.TotalSeats,
		AvailableSeats: []int{},
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		if err := tx.Trips().Create(ctx, trip); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrTripConflict
			}
			return err
		}

		if err := tx.Trips().Initialize(ctx, trip.ID, trip.TotalSeats); err != nil {
			return err
		}

		trip.AvailableSeats = domain.SeatRange(trip.TotalSeats)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return trip, nil
}

// UpdateTrip edits a trip. The available set is rebuilt as every seat of the
// new capacity not held by an active booking, so sold seats never come back
// and seats lost to earlier faults are recovered.
//
// Returns:
//   - *domain.Trip: the trip as stored after the edit.
//   - error: admin.ErrTripNotFound if the trip does not exist.
//   - error: *admin.SeatsBelowSoldError if the new capacity would drop a
//     sold seat.
func (s *Service) UpdateTrip(
	ctx context.Context,
	id domain.Identity,
	tripID uuid.UUID,
	d domain.TripDetails,
) (*domain.Trip, error) {
	const op = "service.admin.UpdateTrip"

	if err := id.RequireAdmin(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	d, err := normalize(d)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var trip *domain.Trip

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		if _, err := tx.Trips().GetForUpdate(ctx, tripID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTripNotFound
			}
			return err
		}

		held, err := tx.Bookings().ActiveSeats(ctx, tripID)
		if err != nil {
			return err
		}

		if lost := domain.SeatsDifference(held, domain.SeatRange(d.TotalSeats)); len(lost) > 0 {
			return &SeatsBelowSoldError{TotalSeats: d.TotalSeats, Seats: domain.SeatsUnion(lost, nil)}
		}

		if err := tx.Trips().UpdateDetails(ctx, tripID, d); err != nil {
			return err
		}

		available := domain.SeatsDifference(domain.SeatRange(d.TotalSeats), held)
		if err := tx.Trips().SetInventory(ctx, tripID, d.TotalSeats, available); err != nil {
			return err
		}

		trip, err = tx.Trips().Get(ctx, tripID)
		if err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.notify.TripChanged(ctx, tripID, redisrepo.TripChangeDetails)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return trip, nil
}

// DeleteTrip removes a trip. Its bookings are kept and show no trip.
func (s *Service) DeleteTrip(ctx context.Context, id domain.Identity, tripID uuid.UUID) error {
	const op = "service.admin.DeleteTrip"

	if err := id.RequireAdmin(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		if err := tx.Trips().Delete(ctx, tripID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTripNotFound
			}
			return err
		}

		after(func(ctx context.Context) {
			s.notify.TripChanged(ctx, tripID, redisrepo.TripChangeDeleted)
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// AuditTrip checks on one consistent snapshot that the trip's available
// seats and the seats of its active bookings partition [1, total seats].
// Conflicts names the bookings behind every double held, overlapping or
// out of range seat.
func (s *Service) AuditTrip(ctx context.Context, id domain.Identity, tripID uuid.UUID) (*domain.SeatAudit, error) {
	const op = "service.admin.AuditTrip"

	if err := id.RequireAdmin(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var audit domain.SeatAudit

	err := s.uow.DoWithOpts(ctx, &repository.TxOptions{ReadOnly: true},
		func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
			trip, err := tx.Trips().Get(ctx, tripID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrTripNotFound
				}
				return err
			}

			bookings, err := tx.Bookings().ListActiveByTrip(ctx, tripID)
			if err != nil {
				return err
			}

			held := []int{}
			for _, b := range bookings {
				held = append(held, b.Seats...)
			}

			audit = domain.AuditSeats(trip.TotalSeats, trip.AvailableSeats, held)
			audit.TripID = tripID

			flagged := domain.SeatsUnion(audit.DoubleHeld, audit.Overlap)
			flagged = domain.SeatsUnion(flagged, audit.OutOfRange)
			audit.Conflicts = domain.SeatHolders(bookings, flagged)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &audit, nil
}

func normalize(d domain.TripDetails) (domain.TripDetails, error) {
	d.From = strings.TrimSpace(d.From)
	d.To = strings.TrimSpace(d.To)
	d.Time = strings.TrimSpace(d.Time)
	d.Duration = strings.TrimSpace(d.Duration)

	switch {
	case d.From == "" || d.To == "":
		return d, fmt.Errorf("%w: from and to are required", ErrInvalidTrip)
	case d.Date.IsZero():
		return d, fmt.Errorf("%w: date is required", ErrInvalidTrip)
	case d.TotalSeats <= 0:
		return d, fmt.Errorf("%w: total seats must be positive", ErrInvalidTrip)
	case d.PriceCents < 0:
		return d, fmt.Errorf("%w: price must not be negative", ErrInvalidTrip)
	}

	if d.Time != "" {
		if _, err := time.Parse("15:04", d.Time); err != nil {
			return d, fmt.Errorf("%w: time must be HH:MM", ErrInvalidTrip)
		}
	}

	y, m, day := d.Date.Date()
	d.Date = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)

	return d, nil
}
