//go:build integration

package postgresrepo_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tripgo/internal/app"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
	postgresrepo "github.com/kirinyoku/tripgo/internal/repository/postgres"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/cancellation"
	"github.com/kirinyoku/tripgo/internal/service/reservation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "tripgo",
				"POSTGRES_PASSWORD": "tripgo",
				"POSTGRES_DB":       "tripgo",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://tripgo:tripgo@%s:%s/tripgo?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	mg, err := app.NewMigrator(pool)
	require.NoError(t, err)
	defer mg.Close()
	require.NoError(t, mg.Run(ctx))

	return pool
}

func TestIntegration_ConcurrentReservationsNeverDoubleSell(t *testing.T) {
	pool := startPostgres(t)
	store := postgresrepo.NewStore(pool)
	ctx := context.Background()

	trip := &domain.Trip{
		ID:             uuid.New(),
		From:           "Kyiv",
		To:             "Lviv",
		Date:           time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC),
		Time:           "09:30",
		PriceCents:     45000,
		TotalSeats:     3,
		AvailableSeats: domain.SeatRange(3),
	}
	require.NoError(t, store.Trips().Create(ctx, trip))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := store.RunTx(ctx, nil, func(ctx context.Context, tx repository.Tx) error {
				if _, err := tx.Trips().GetForUpdate(ctx, trip.ID); err != nil {
					return err
				}
				if err := tx.Trips().RemoveSeats(ctx, trip.ID, []int{2}); err != nil {
					return err
				}
				return tx.Bookings().Create(ctx, &domain.Booking{
					ID:          uuid.New(),
					TripID:      trip.ID,
					UserID:      uuid.New(),
					Seats:       []int{2},
					Status:      domain.BookingBooked,
					Payment:     domain.PaymentInfo{Method: domain.DefaultPaymentMethod},
					BookingDate: time.Now().UTC(),
				})
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, repository.ErrSeatsUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)

	got, err := store.Trips().Get(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got.AvailableSeats)

	held, err := store.Bookings().ActiveSeats(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, held)
}

func TestIntegration_CancelRacesReservations(t *testing.T) {
	pool := startPostgres(t)
	store := postgresrepo.NewStore(pool)
	ctx := context.Background()

	svcs, err := service.NewServices(store, service.Deps{}, service.Config{TicketSecret: "integration"})
	require.NoError(t, err)

	admin := domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin}
	traveller := func() domain.Identity { return domain.Identity{UserID: uuid.New(), Role: domain.RoleUser} }

	const seats = 6
	trip, err := svcs.Admin.CreateTrip(ctx, admin, domain.TripDetails{
		From:       "Kyiv",
		To:         "Kharkiv",
		Date:       time.Now().UTC().AddDate(0, 1, 0),
		Time:       "06:10",
		PriceCents: 38000,
		TotalSeats: seats,
	})
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, seats)
	for seat := 1; seat <= seats; seat++ {
		b, err := svcs.Reservation.Book(ctx, traveller(), reservation.BookRequest{TripID: trip.ID, Seats: []int{seat}})
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}

	var (
		wg        sync.WaitGroup
		cancelled atomic.Int32
		repeated  atomic.Int32
		booked    atomic.Int32
	)

	for _, id := range ids {
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				_, err := svcs.Cancellation.Cancel(ctx, admin, id)
				switch {
				case err == nil:
					cancelled.Add(1)
				case errors.Is(err, cancellation.ErrAlreadyCancelled):
					repeated.Add(1)
				default:
					t.Errorf("cancel: %v", err)
				}
			}()
		}
	}

	for i := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := svcs.Reservation.Book(ctx, traveller(), reservation.BookRequest{TripID: trip.ID, Seats: []int{i%seats + 1}})
			switch {
			case err == nil:
				booked.Add(1)
			case errors.Is(err, reservation.ErrSeatsUnavailable):
			default:
				t.Errorf("book: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.EqualValues(t, seats, cancelled.Load())
	assert.EqualValues(t, seats*2, repeated.Load())

	audit, err := svcs.Admin.AuditTrip(ctx, admin, trip.ID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent, "%+v", audit)
	assert.Len(t, audit.Held, int(booked.Load()))
}

func TestIntegration_SearchMatchesRouteLiterally(t *testing.T) {
	pool := startPostgres(t)
	store := postgresrepo.NewStore(pool)
	ctx := context.Background()

	trip := &domain.Trip{
		ID:             uuid.New(),
		From:           "Kyiv",
		To:             "Lviv",
		Date:           time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC),
		Time:           "10:00",
		TotalSeats:     2,
		AvailableSeats: domain.SeatRange(2),
	}
	require.NoError(t, store.Trips().Create(ctx, trip))

	got, err := store.Trips().Search(ctx, domain.TripFilter{From: "KYIV", To: "lviv", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, trip.ID, got[0].ID)

	for _, from := range []string{"K%", "Ky_v", "%"} {
		got, err := store.Trips().Search(ctx, domain.TripFilter{From: from, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, got, from)
	}
}

func TestIntegration_BookingViewsSurviveTripDeletion(t *testing.T) {
	pool := startPostgres(t)
	store := postgresrepo.NewStore(pool)
	ctx := context.Background()

	trip := &domain.Trip{
		ID:             uuid.New(),
		From:           "Odesa",
		To:             "Dnipro",
		Date:           time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC),
		Time:           "12:00",
		TotalSeats:     2,
		AvailableSeats: []int{2},
	}
	require.NoError(t, store.Trips().Create(ctx, trip))

	b := &domain.Booking{
		ID:          uuid.New(),
		TripID:      trip.ID,
		UserID:      uuid.New(),
		Seats:       []int{1},
		Status:      domain.BookingBooked,
		Payment:     domain.PaymentInfo{Method: domain.DefaultPaymentMethod},
		BookingDate: time.Now().UTC(),
	}
	require.NoError(t, store.Bookings().Create(ctx, b))

	v, err := store.Queries().GetBookingView(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, v.Trip)
	assert.Equal(t, "Odesa", v.Trip.From)

	require.NoError(t, store.Trips().Delete(ctx, trip.ID))

	v, err = store.Queries().GetBookingView(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, v.Trip)
	assert.Equal(t, []int{1}, v.Seats)
}
