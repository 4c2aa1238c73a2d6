package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

type queryRepo struct {
	store *Store
}

func (r *queryRepo) GetBookingView(_ context.Context, id uuid.UUID) (*domain.BookingView, error) {
	const op = "memory.QueryRepo.GetBookingView"

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	b, ok := r.store.st.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	v := view(r.store.st, b)
	return &v, nil
}

func (r *queryRepo) ListBookingsByUser(_ context.Context, userID uuid.UUID) ([]domain.BookingView, error) {
	return r.list(func(b domain.Booking) bool { return b.UserID == userID }, 0, 0), nil
}

func (r *queryRepo) ListBookings(_ context.Context, limit, offset int) ([]domain.BookingView, error) {
	return r.list(func(domain.Booking) bool { return true }, limit, offset), nil
}

// list returns matching bookings newest first.
func (r *queryRepo) list(match func(domain.Booking) bool, limit, offset int) []domain.BookingView {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	out := []domain.BookingView{}
	for _, b := range r.store.st.bookings {
		if match(b) {
			out = append(out, view(r.store.st, b))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookingDate.Equal(out[j].BookingDate) {
			return out[i].BookingDate.After(out[j].BookingDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	return page(out, limit, offset)
}

func view(st *state, b domain.Booking) domain.BookingView {
	v := domain.BookingView{Booking: copyBooking(b)}

	if t, ok := st.trips[b.TripID]; ok {
		v.Trip = &domain.TripSummary{
			ID:         t.ID,
			From:       t.From,
			To:         t.To,
			Date:       t.Date,
			Time:       t.Time,
			PriceCents: t.PriceCents,
		}
	}

	if u, ok := st.users[b.UserID]; ok {
		v.User = &u
	}

	return v
}
