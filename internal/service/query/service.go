package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/uow"
)

type Config struct {
	// TripTTL bounds how long a cached trip, seat map included, may be served.
	TripTTL         time.Duration
	AvailabilityTTL time.Duration
	BookedSeatsTTL  time.Duration
	DefaultPage     int
	MaxPage         int
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	uow   *uow.UoW
	cfg   Config
	now   func() time.Time
}

func New(store repository.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.TripTTL <= 0 {
		cfg.TripTTL = 5 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.BookedSeatsTTL <= 0 {
		cfg.BookedSeatsTTL = 15 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 50
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 200
	}

	return &Service{
		store: store,
		cache: cache,
		uow:   uow.NewUoW(store),
		cfg:   cfg,
		now:   time.Now,
	}
}

// GetTrip retrieves a trip by its ID, utilizing a caching layer to improve performance.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the trip to retrieve.
//
// Returns:
//   - *domain.Trip: the trip including its available seats.
//   - error: query.ErrTripNotFound if the trip is not found.
func (s *Service) GetTrip(ctx context.Context, id uuid.UUID) (*domain.Trip, error) {
	const op = "service.query.GetTrip"

	trip, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTripSummary(id),
		s.cfg.TripTTL,
		func(ctx context.Context) (domain.Trip, error) {
			t, err := s.store.Trips().Get(ctx, id)
			if err != nil {
				return domain.Trip{}, err
			}
			return *t, nil
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTripNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &trip, nil
}

// SearchTrips lists trips by route and date. Empty fields match everything.
func (s *Service) SearchTrips(ctx context.Context, f domain.TripFilter) ([]domain.Trip, error) {
	const op = "service.query.SearchTrips"

	if f.Offset < 0 {
		return nil, fmt.Errorf("%s:%w: offset must not be negative", op, ErrInvalidFilter)
	}

	f.Limit = s.clampPage(f.Limit)

	trips, err := s.store.Trips().Search(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return trips, nil
}

// Availability counts total, available and booked seats of a trip.
func (s *Service) Availability(ctx context.Context, tripID uuid.UUID) (*domain.TripAvailability, error) {
	const op = "service.query.Availability"

	a, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTripAvailability(tripID),
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.TripAvailability, error) {
			trip, held, err := s.tripWithHeld(ctx, tripID)
			if err != nil {
				return domain.TripAvailability{}, err
			}
			return domain.TripAvailability{
				TripID:    tripID,
				Total:     trip.TotalSeats,
				Available: len(trip.AvailableSeats),
				Booked:    len(held),
			}, nil
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTripNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &a, nil
}

// BookedSeats returns the sorted seats held by active bookings of the trip.
// The list is derived from bookings, not read from the trip.
func (s *Service) BookedSeats(ctx context.Context, id domain.Identity, tripID uuid.UUID) ([]int, error) {
	const op = "service.query.BookedSeats"

	if err := id.RequireUser(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	seats, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTripBookedSeats(tripID),
		s.cfg.BookedSeatsTTL,
		func(ctx context.Context) ([]int, error) {
			_, held, err := s.tripWithHeld(ctx, tripID)
			if err != nil {
				return nil, err
			}
			return domain.SeatsUnion(held, nil), nil
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTripNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return seats, nil
}

// GetBooking returns a booking with its trip and user summaries. Only the
// owner and administrators may read it.
//
// Returns:
//   - *domain.BookingView: the booking; Trip is nil if the trip was deleted.
//   - error: query.ErrBookingNotFound if the booking is not found.
//   - error: domain.ErrForbidden if the caller may not see it.
func (s *Service) GetBooking(ctx context.Context, id domain.Identity, bookingID uuid.UUID) (*domain.BookingView, error) {
	const op = "service.query.GetBooking"

	if err := id.RequireUser(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	v, err := s.store.Queries().GetBookingView(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !id.CanView(&v.Booking) {
		return nil, fmt.Errorf("%s:%w", op, domain.ErrForbidden)
	}

	return v, nil
}

// ListUserBookings splits the caller's bookings into upcoming (booked, trip
// today or later) and past (everything else, cancelled included).
func (s *Service) ListUserBookings(ctx context.Context, id domain.Identity) (*domain.UserBookings, error) {
	const op = "service.query.ListUserBookings"

	if err := id.RequireUser(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	views, err := s.store.Queries().ListBookingsByUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	y, m, d := s.now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	out := &domain.UserBookings{
		Upcoming: []domain.BookingView{},
		Past:     []domain.BookingView{},
	}
	for _, v := range views {
		if v.Active() && v.Trip != nil && !v.Trip.Date.Before(today) {
			out.Upcoming = append(out.Upcoming, v)
		} else {
			out.Past = append(out.Past, v)
		}
	}

	return out, nil
}

// ListAllBookings pages through every booking, newest first. Admin only.
func (s *Service) ListAllBookings(ctx context.Context, id domain.Identity, limit, offset int) ([]domain.BookingView, error) {
	const op = "service.query.ListAllBookings"

	if err := id.RequireAdmin(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if offset < 0 {
		return nil, fmt.Errorf("%s:%w: offset must not be negative", op, ErrInvalidFilter)
	}

	views, err := s.store.Queries().ListBookings(ctx, s.clampPage(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return views, nil
}

// tripWithHeld reads the trip and the seats of its active bookings from one
// snapshot.
func (s *Service) tripWithHeld(ctx context.Context, tripID uuid.UUID) (*domain.Trip, []int, error) {
	var (
		trip *domain.Trip
		held []int
	)

	err := s.uow.DoWithOpts(ctx, &repository.TxOptions{ReadOnly: true},
		func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
			var err error
			if trip, err = tx.Trips().Get(ctx, tripID); err != nil {
				return err
			}
			held, err = tx.Bookings().ActiveSeats(ctx, tripID)
			return err
		})
	if err != nil {
		return nil, nil, err
	}

	return trip, held, nil
}

func (s *Service) clampPage(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultPage
	}

	if limit > s.cfg.MaxPage {
		return s.cfg.MaxPage
	}

	return limit
}
