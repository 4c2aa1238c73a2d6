package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/repository"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service/notify"
	"github.com/kirinyoku/tripgo/internal/uow"
)

type Config struct {
	// MaxSeatsPerBooking caps one request. Zero means no cap.
	MaxSeatsPerBooking int
}

type Service struct {
	limiter *redisrepo.SlidingWindowLimiter
	notify  *notify.Notifier
	uow     *uow.UoW
	cfg     Config
	now     func() time.Time
}

func New(
	store repository.Store,
	limiter *redisrepo.SlidingWindowLimiter,
	n *notify.Notifier,
	cfg Config,
) *Service {
	return &Service{
		limiter: limiter,
		notify:  n,
		uow:     uow.NewUoW(store),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// BookRequest is a request to reserve seats on one trip.
type BookRequest struct {
	TripID        uuid.UUID
	Seats         []int
	PaymentMethod string
}

// Book reserves the requested seats and records the booking in one
// transaction. Either both happen or neither does.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: the authenticated caller; the booking is made for id.UserID.
//   - req: trip, seats and optional payment method.
//
// Returns:
//   - *domain.Booking: the created booking with status booked and paid=false.
//   - error: domain.ErrUnauthenticated for an anonymous caller.
//   - error: reservation.ErrInvalidSeats for an empty, non-positive or
//     duplicated seat list.
//   - error: reservation.ErrTripNotFound if the trip does not exist.
//   - error: *reservation.SeatsUnavailableError naming the taken seats.
//   - error: *reservation.RateLimitedError if the caller books too often.
func (s *Service) Book(ctx context.Context, id domain.Identity, req BookRequest) (*domain.Booking, error) {
	const op = "service.reservation.Book"

	if err := id.RequireUser(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.validateSeats(req.Seats); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ok, _, retry, err := s.limiter.Allow(ctx, id.UserID.String())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, &RateLimitedError{RetryAfter: retry})
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = domain.DefaultPaymentMethod
	}

	booking := &domain.Booking{
		ID:          uuid.New(),
		TripID:      req.TripID,
		UserID:      id.UserID,
		Seats:       append([]int{}, req.Seats...),
		Status:      domain.BookingBooked,
		Payment:     domain.PaymentInfo{Method: method},
		BookingDate: s.now(),
	}

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		trip, err := tx.Trips().GetForUpdate(ctx, req.TripID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTripNotFound
			}
			return err
		}

		if taken := domain.SeatsDifference(req.Seats, trip.AvailableSeats); len(taken) > 0 {
			return &SeatsUnavailableError{Seats: taken}
		}

		if err := tx.Trips().RemoveSeats(ctx, req.TripID, req.Seats); err != nil {
			var su *repository.SeatsUnavailableError
			if errors.As(err, &su) {
				return &SeatsUnavailableError{Seats: su.Seats}
			}
			return err
		}

		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.notify.TripChanged(ctx, req.TripID, redisrepo.TripChangeSeats)
			s.notify.Booking(ctx, events.TypeBookingCreated, booking)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return booking, nil
}

func (s *Service) validateSeats(seats []int) error {
	if len(seats) == 0 {
		return fmt.Errorf("%w: no seats selected", ErrInvalidSeats)
	}

	if s.cfg.MaxSeatsPerBooking > 0 && len(seats) > s.cfg.MaxSeatsPerBooking {
		return fmt.Errorf("%w: at most %d seats per booking", ErrInvalidSeats, s.cfg.MaxSeatsPerBooking)
	}

	for _, n := range seats {
		if n <= 0 {
			return fmt.Errorf("%w: seat %d is not a positive number", ErrInvalidSeats, n)
		}
	}

	if dup := domain.DuplicateSeats(seats); len(dup) > 0 {
		return fmt.Errorf("%w: duplicated seats %v", ErrInvalidSeats, dup)
	}

	return nil
}
