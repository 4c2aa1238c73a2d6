package reservation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	"github.com/kirinyoku/tripgo/internal/service/notify"
	"github.com/kirinyoku/tripgo/internal/service/reservation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, seats int) (*memory.Store, *reservation.Service, uuid.UUID) {
	t.Helper()

	store := memory.New()
	trip := &domain.Trip{
		ID:             uuid.New(),
		From:           "Kyiv",
		To:             "Lviv",
		Date:           time.Now().UTC().AddDate(0, 0, 7),
		TotalSeats:     seats,
		AvailableSeats: domain.SeatRange(seats),
	}
	require.NoError(t, store.Trips().Create(context.Background(), trip))

	svc := reservation.New(store, nil, notify.New(nil, nil, nil, nil), reservation.Config{MaxSeatsPerBooking: 6})

	return store, svc, trip.ID
}

func user() domain.Identity {
	return domain.Identity{UserID: uuid.New(), Role: domain.RoleUser}
}

func TestBook_Success(t *testing.T) {
	store, svc, tripID := setup(t, 4)
	ctx := context.Background()
	u := user()

	b, err := svc.Book(ctx, u, reservation.BookRequest{TripID: tripID, Seats: []int{3, 1}})
	require.NoError(t, err)

	assert.Equal(t, domain.BookingBooked, b.Status)
	assert.Equal(t, u.UserID, b.UserID)
	assert.Equal(t, []int{3, 1}, b.Seats, "seat order is preserved")
	assert.False(t, b.Payment.Paid)
	assert.Equal(t, domain.DefaultPaymentMethod, b.Payment.Method)

	trip, err := store.Trips().Get(ctx, tripID)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, trip.AvailableSeats)
}

func TestBook_Validation(t *testing.T) {
	_, svc, tripID := setup(t, 10)
	ctx := context.Background()

	cases := map[string][]int{
		"empty":     nil,
		"zero":      {0},
		"negative":  {-1, 2},
		"duplicate": {2, 2},
		"too many":  {1, 2, 3, 4, 5, 6, 7},
	}
	for name, seats := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Book(ctx, user(), reservation.BookRequest{TripID: tripID, Seats: seats})
			assert.ErrorIs(t, err, reservation.ErrInvalidSeats)
		})
	}
}

func TestBook_Unauthenticated(t *testing.T) {
	_, svc, tripID := setup(t, 2)

	_, err := svc.Book(context.Background(), domain.Identity{}, reservation.BookRequest{TripID: tripID, Seats: []int{1}})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestBook_TripNotFound(t *testing.T) {
	_, svc, _ := setup(t, 2)

	_, err := svc.Book(context.Background(), user(), reservation.BookRequest{TripID: uuid.New(), Seats: []int{1}})
	assert.ErrorIs(t, err, reservation.ErrTripNotFound)
}

func TestBook_PartialConflictChangesNothing(t *testing.T) {
	store, svc, tripID := setup(t, 5)
	ctx := context.Background()

	_, err := svc.Book(ctx, user(), reservation.BookRequest{TripID: tripID, Seats: []int{5}})
	require.NoError(t, err)

	_, err = svc.Book(ctx, user(), reservation.BookRequest{TripID: tripID, Seats: []int{4, 5}})
	require.ErrorIs(t, err, reservation.ErrSeatsUnavailable)

	var su *reservation.SeatsUnavailableError
	require.True(t, errors.As(err, &su))
	assert.Equal(t, []int{5}, su.Seats)

	trip, err := store.Trips().Get(ctx, tripID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, trip.AvailableSeats)

	held, err := store.Bookings().ActiveSeats(ctx, tripID)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, held, "no booking was created for the failed request")
}

func TestBook_SeatOutsideTripIsUnavailable(t *testing.T) {
	_, svc, tripID := setup(t, 3)

	_, err := svc.Book(context.Background(), user(), reservation.BookRequest{TripID: tripID, Seats: []int{4}})
	var su *reservation.SeatsUnavailableError
	require.True(t, errors.As(err, &su))
	assert.Equal(t, []int{4}, su.Seats)
}

func TestBook_ConcurrentRequestsNeverDoubleSell(t *testing.T) {
	store, svc, tripID := setup(t, 3)
	ctx := context.Background()

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := svc.Book(ctx, user(), reservation.BookRequest{TripID: tripID, Seats: []int{2}})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, reservation.ErrSeatsUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)

	trip, err := store.Trips().Get(ctx, tripID)
	require.NoError(t, err)
	held, err := store.Bookings().ActiveSeats(ctx, tripID)
	require.NoError(t, err)

	audit := domain.AuditSeats(trip.TotalSeats, trip.AvailableSeats, held)
	assert.True(t, audit.Consistent, "%+v", audit)
}
