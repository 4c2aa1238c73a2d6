package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/admin"
	"github.com/kirinyoku/tripgo/internal/service/cancellation"
	"github.com/kirinyoku/tripgo/internal/service/payment"
	"github.com/kirinyoku/tripgo/internal/service/query"
	"github.com/kirinyoku/tripgo/internal/service/reservation"
	"github.com/kirinyoku/tripgo/internal/service/tickets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminID = domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin}

func newServices(t *testing.T) (*memory.Store, *service.Services) {
	t.Helper()

	store := memory.New()
	svcs, err := service.NewServices(store, service.Deps{}, service.Config{TicketSecret: "test-secret"})
	require.NoError(t, err)

	return store, svcs
}

func newUser() domain.Identity {
	return domain.Identity{UserID: uuid.New(), Role: domain.RoleUser}
}

func createTrip(t *testing.T, svcs *service.Services, seats int, date time.Time) *domain.Trip {
	t.Helper()

	trip, err := svcs.Admin.CreateTrip(context.Background(), adminID, domain.TripDetails{
		From:       "Kyiv",
		To:         "Lviv",
		Date:       date,
		Time:       "08:15",
		PriceCents: 45000,
		TotalSeats: seats,
	})
	require.NoError(t, err)

	return trip
}

func available(t *testing.T, svcs *service.Services, id uuid.UUID) []int {
	t.Helper()

	trip, err := svcs.Query.GetTrip(context.Background(), id)
	require.NoError(t, err)

	return trip.AvailableSeats
}

func book(t *testing.T, svcs *service.Services, u domain.Identity, tripID uuid.UUID, seats ...int) *domain.Booking {
	t.Helper()

	b, err := svcs.Reservation.Book(context.Background(), u, reservation.BookRequest{TripID: tripID, Seats: seats})
	require.NoError(t, err)

	return b
}

func TestRoundTrip(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 4, time.Now().AddDate(0, 0, 3))
	assert.Equal(t, []int{1, 2, 3, 4}, trip.AvailableSeats)

	a := book(t, svcs, newUser(), trip.ID, 1, 3)
	assert.Equal(t, []int{2, 4}, available(t, svcs, trip.ID))

	_, err := svcs.Reservation.Book(ctx, newUser(), reservation.BookRequest{TripID: trip.ID, Seats: []int{1}})
	var su *reservation.SeatsUnavailableError
	require.True(t, errors.As(err, &su))
	assert.Equal(t, []int{1}, su.Seats)
	assert.Equal(t, []int{2, 4}, available(t, svcs, trip.ID))

	cancelled, err := svcs.Cancellation.Cancel(ctx, adminID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, cancelled.Status)
	assert.Equal(t, []int{1, 2, 3, 4}, available(t, svcs, trip.ID))
}

func TestCancel_IsNotRepeatable(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 3, time.Now().AddDate(0, 0, 1))
	b := book(t, svcs, newUser(), trip.ID, 1, 2)

	_, err := svcs.Cancellation.Cancel(ctx, adminID, b.ID)
	require.NoError(t, err)

	// Another traveller takes seat 1 after the release.
	book(t, svcs, newUser(), trip.ID, 1)

	_, err = svcs.Cancellation.Cancel(ctx, adminID, b.ID)
	require.ErrorIs(t, err, cancellation.ErrAlreadyCancelled)

	assert.Equal(t, []int{2, 3}, available(t, svcs, trip.ID), "seat 1 must not be released twice")
}

func TestCancel_RacesReservations(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	const seats = 10
	trip := createTrip(t, svcs, seats, time.Now().AddDate(0, 0, 2))

	bookings := make([]*domain.Booking, 0, seats)
	for seat := 1; seat <= seats; seat++ {
		bookings = append(bookings, book(t, svcs, newUser(), trip.ID, seat))
	}

	var (
		wg        sync.WaitGroup
		cancelled atomic.Int32
		repeated  atomic.Int32
		booked    atomic.Int32
		errs      = make(chan error, seats*3+20)
	)

	for _, b := range bookings {
		for range 3 {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()

				_, err := svcs.Cancellation.Cancel(ctx, adminID, id)
				switch {
				case err == nil:
					cancelled.Add(1)
				case errors.Is(err, cancellation.ErrAlreadyCancelled):
					repeated.Add(1)
				default:
					errs <- err
				}
			}(b.ID)
		}
	}

	for i := range 20 {
		wg.Add(1)
		go func(seat int) {
			defer wg.Done()

			_, err := svcs.Reservation.Book(ctx, newUser(), reservation.BookRequest{TripID: trip.ID, Seats: []int{seat}})
			switch {
			case err == nil:
				booked.Add(1)
			case errors.Is(err, reservation.ErrSeatsUnavailable):
			default:
				errs <- err
			}
		}(i%seats + 1)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	assert.EqualValues(t, seats, cancelled.Load(), "each booking is cancelled exactly once")
	assert.EqualValues(t, seats*2, repeated.Load())

	audit, err := svcs.Admin.AuditTrip(ctx, adminID, trip.ID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent, "%+v", audit)
	assert.Len(t, audit.Held, int(booked.Load()))
	assert.Len(t, audit.Available, seats-int(booked.Load()))
}

func TestCancel_Access(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 2, time.Now().AddDate(0, 0, 1))
	owner := newUser()
	b := book(t, svcs, owner, trip.ID, 1)

	_, err := svcs.Cancellation.Cancel(ctx, owner, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svcs.Cancellation.Cancel(ctx, domain.Identity{}, b.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svcs.Cancellation.Cancel(ctx, adminID, uuid.New())
	assert.ErrorIs(t, err, cancellation.ErrBookingNotFound)
}

func TestCancel_OrphanedBooking(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 2, time.Now().AddDate(0, 0, 1))
	b := book(t, svcs, newUser(), trip.ID, 2)

	require.NoError(t, svcs.Admin.DeleteTrip(ctx, adminID, trip.ID))

	got, err := svcs.Cancellation.Cancel(ctx, adminID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)

	v, err := svcs.Query.GetBooking(ctx, adminID, b.ID)
	require.NoError(t, err)
	assert.Nil(t, v.Trip)
}

func TestUpdateTrip_KeepsSoldSeats(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 5, time.Now().AddDate(0, 0, 2))
	book(t, svcs, newUser(), trip.ID, 2, 4)

	updated, err := svcs.Admin.UpdateTrip(ctx, adminID, trip.ID, domain.TripDetails{
		From: "Kyiv", To: "Odesa", Date: trip.Date, Time: "09:00", PriceCents: 50000, TotalSeats: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, "Odesa", updated.To)
	assert.Equal(t, 6, updated.TotalSeats)
	assert.Equal(t, []int{1, 3, 5, 6}, updated.AvailableSeats)

	updated, err = svcs.Admin.UpdateTrip(ctx, adminID, trip.ID, domain.TripDetails{
		From: "Kyiv", To: "Odesa", Date: trip.Date, TotalSeats: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, updated.AvailableSeats)
}

func TestUpdateTrip_RejectsShrinkBelowSold(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 5, time.Now().AddDate(0, 0, 2))
	book(t, svcs, newUser(), trip.ID, 5)

	_, err := svcs.Admin.UpdateTrip(ctx, adminID, trip.ID, domain.TripDetails{
		From: "Kyiv", To: "Lviv", Date: trip.Date, TotalSeats: 3,
	})
	require.ErrorIs(t, err, admin.ErrSeatsBelowSold)

	var sb *admin.SeatsBelowSoldError
	require.True(t, errors.As(err, &sb))
	assert.Equal(t, []int{5}, sb.Seats)

	assert.Equal(t, []int{1, 2, 3, 4}, available(t, svcs, trip.ID))
}

func TestCreateTrip_Validation(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	_, err := svcs.Admin.CreateTrip(ctx, adminID, domain.TripDetails{From: "A", To: "B", Date: time.Now()})
	assert.ErrorIs(t, err, admin.ErrInvalidTrip)

	_, err = svcs.Admin.CreateTrip(ctx, adminID, domain.TripDetails{From: "A", To: "B", Date: time.Now(), TotalSeats: 2, Time: "25:99"})
	assert.ErrorIs(t, err, admin.ErrInvalidTrip)

	_, err = svcs.Admin.CreateTrip(ctx, newUser(), domain.TripDetails{From: "A", To: "B", Date: time.Now(), TotalSeats: 2})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAuditTrip(t *testing.T) {
	store, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 4, time.Now().AddDate(0, 0, 2))
	book(t, svcs, newUser(), trip.ID, 1, 2)

	audit, err := svcs.Admin.AuditTrip(ctx, adminID, trip.ID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.Equal(t, trip.ID, audit.TripID)
	assert.Equal(t, []int{1, 2}, audit.Held)

	// Corrupt the inventory behind the services' back.
	require.NoError(t, store.Trips().SetInventory(ctx, trip.ID, 4, []int{2, 3}))

	audit, err = svcs.Admin.AuditTrip(ctx, adminID, trip.ID)
	require.NoError(t, err)
	assert.False(t, audit.Consistent)
	assert.Equal(t, []int{4}, audit.Missing)
	assert.Equal(t, []int{2}, audit.Overlap)
}

func TestAuditTrip_NamesConflictingBookings(t *testing.T) {
	store, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 4, time.Now().AddDate(0, 0, 2))
	first := book(t, svcs, newUser(), trip.ID, 1, 2)
	book(t, svcs, newUser(), trip.ID, 3)

	// A second booking on seat 2 written straight into the store.
	rogue := &domain.Booking{
		ID:          uuid.New(),
		TripID:      trip.ID,
		UserID:      uuid.New(),
		Seats:       []int{2},
		Status:      domain.BookingBooked,
		BookingDate: time.Now().UTC(),
	}
	require.NoError(t, store.Bookings().Create(ctx, rogue))

	audit, err := svcs.Admin.AuditTrip(ctx, adminID, trip.ID)
	require.NoError(t, err)
	assert.False(t, audit.Consistent)
	assert.Equal(t, []int{2}, audit.DoubleHeld)
	require.Len(t, audit.Conflicts, 1)
	assert.Equal(t, 2, audit.Conflicts[0].Seat)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, rogue.ID}, audit.Conflicts[0].BookingIDs)

	// With the rogue booking out of the active set the partition is whole again.
	require.NoError(t, store.Bookings().UpdateStatus(ctx, rogue.ID, domain.BookingCancelled))

	audit, err = svcs.Admin.AuditTrip(ctx, adminID, trip.ID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.Empty(t, audit.Conflicts)
}

func TestQuery_AvailabilityAndBookedSeats(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 5, time.Now().AddDate(0, 0, 2))
	book(t, svcs, newUser(), trip.ID, 4, 1)
	b := book(t, svcs, newUser(), trip.ID, 2)
	_, err := svcs.Cancellation.Cancel(ctx, adminID, b.ID)
	require.NoError(t, err)

	a, err := svcs.Query.Availability(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripAvailability{TripID: trip.ID, Total: 5, Available: 3, Booked: 2}, *a)

	seats, err := svcs.Query.BookedSeats(ctx, newUser(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, seats)

	_, err = svcs.Query.BookedSeats(ctx, domain.Identity{}, trip.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svcs.Query.Availability(ctx, uuid.New())
	assert.ErrorIs(t, err, query.ErrTripNotFound)
}

func TestQuery_UserBookingsSplit(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()
	u := newUser()

	future := createTrip(t, svcs, 3, time.Now().AddDate(0, 0, 5))
	past := createTrip(t, svcs, 3, time.Now().AddDate(0, 0, -5))

	up := book(t, svcs, u, future.ID, 1)
	old := book(t, svcs, u, past.ID, 1)
	gone := book(t, svcs, u, future.ID, 2)
	_, err := svcs.Cancellation.Cancel(ctx, adminID, gone.ID)
	require.NoError(t, err)
	book(t, svcs, newUser(), future.ID, 3)

	got, err := svcs.Query.ListUserBookings(ctx, u)
	require.NoError(t, err)

	require.Len(t, got.Upcoming, 1)
	assert.Equal(t, up.ID, got.Upcoming[0].ID)
	require.NotNil(t, got.Upcoming[0].Trip)
	assert.Equal(t, "Kyiv", got.Upcoming[0].Trip.From)

	pastIDs := []uuid.UUID{}
	for _, v := range got.Past {
		pastIDs = append(pastIDs, v.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{old.ID, gone.ID}, pastIDs)
}

func TestQuery_GetBookingAccess(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 2, time.Now().AddDate(0, 0, 1))
	owner := newUser()
	b := book(t, svcs, owner, trip.ID, 1)

	_, err := svcs.Query.GetBooking(ctx, owner, b.ID)
	assert.NoError(t, err)

	_, err = svcs.Query.GetBooking(ctx, newUser(), b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svcs.Query.ListAllBookings(ctx, owner, 10, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := svcs.Query.ListAllBookings(ctx, adminID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestQuery_SearchTrips(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	date := time.Date(2031, 3, 4, 0, 0, 0, 0, time.UTC)
	createTrip(t, svcs, 2, date)
	createTrip(t, svcs, 2, date.AddDate(0, 0, 1))

	got, err := svcs.Query.SearchTrips(ctx, domain.TripFilter{From: "Kyiv", Date: &date})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svcs.Query.SearchTrips(ctx, domain.TripFilter{Offset: -1})
	assert.ErrorIs(t, err, query.ErrInvalidFilter)
}

func TestPayment(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 2, time.Now().AddDate(0, 0, 1))
	owner := newUser()
	b := book(t, svcs, owner, trip.ID, 1)

	_, err := svcs.Payment.Pay(ctx, newUser(), b.ID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	paid, err := svcs.Payment.Pay(ctx, owner, b.ID, "card")
	require.NoError(t, err)
	assert.True(t, paid.Payment.Paid)
	assert.Equal(t, "card", paid.Payment.Method)
	assert.True(t, strings.HasPrefix(paid.Payment.TxnID, "TXN-"))

	_, err = svcs.Payment.Pay(ctx, owner, b.ID, "")
	assert.ErrorIs(t, err, payment.ErrAlreadyPaid)

	other := book(t, svcs, owner, trip.ID, 2)
	_, err = svcs.Cancellation.Cancel(ctx, adminID, other.ID)
	require.NoError(t, err)
	_, err = svcs.Payment.Pay(ctx, owner, other.ID, "")
	assert.ErrorIs(t, err, payment.ErrBookingCancelled)
}

func TestTickets(t *testing.T) {
	_, svcs := newServices(t)
	ctx := context.Background()

	trip := createTrip(t, svcs, 2, time.Now().AddDate(0, 0, 1))
	owner := newUser()
	b := book(t, svcs, owner, trip.ID, 1, 2)

	png, err := svcs.Tickets.QR(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	pdf, err := svcs.Tickets.PDF(ctx, adminID, b.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, err = svcs.Tickets.QR(ctx, newUser(), b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svcs.Tickets.Verify(ctx, adminID, "garbage")
	assert.ErrorIs(t, err, tickets.ErrInvalidCode)

	_, err = svcs.Cancellation.Cancel(ctx, adminID, b.ID)
	require.NoError(t, err)
	_, err = svcs.Tickets.QR(ctx, owner, b.ID)
	assert.ErrorIs(t, err, tickets.ErrBookingCancelled)
}
