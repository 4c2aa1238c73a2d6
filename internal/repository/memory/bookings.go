package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

type bookingRepo struct {
	store *Store
	st    *state
}

func (r *bookingRepo) do(fn func(st *state) error) error {
	return access(r.store, r.st, fn)
}

func (r *bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	const op = "memory.BookingRepo.Create"

	return r.do(func(st *state) error {
		if _, ok := st.bookings[b.ID]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}

		st.bookings[b.ID] = copyBooking(*b)
		return nil
	})
}

func (r *bookingRepo) Get(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "memory.BookingRepo.Get"

	var out domain.Booking
	err := r.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}

		out = copyBooking(b)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r *bookingRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.BookingStatus) error {
	return r.mutate("memory.BookingRepo.UpdateStatus", id, func(b *domain.Booking) {
		b.Status = status
	})
}

func (r *bookingRepo) UpdatePayment(_ context.Context, id uuid.UUID, p domain.PaymentInfo) error {
	return r.mutate("memory.BookingRepo.UpdatePayment", id, func(b *domain.Booking) {
		b.Payment = p
	})
}

func (r *bookingRepo) ListActiveByTrip(_ context.Context, tripID uuid.UUID) ([]domain.Booking, error) {
	out := []domain.Booking{}

	_ = r.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.TripID == tripID && b.Active() {
				out = append(out, copyBooking(b))
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookingDate.Equal(out[j].BookingDate) {
			return out[i].BookingDate.Before(out[j].BookingDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	return out, nil
}

// ActiveSeats returns every seat held by a booked reservation of the trip,
// sorted, duplicates included.
func (r *bookingRepo) ActiveSeats(_ context.Context, tripID uuid.UUID) ([]int, error) {
	out := []int{}

	_ = r.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.TripID == tripID && b.Active() {
				out = append(out, b.Seats...)
			}
		}
		return nil
	})

	sort.Ints(out)

	return out, nil
}

func (r *bookingRepo) mutate(op string, id uuid.UUID, fn func(b *domain.Booking)) error {
	return r.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}

		b = copyBooking(b)
		fn(&b)
		st.bookings[id] = b
		return nil
	})
}
