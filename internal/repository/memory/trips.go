package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

type tripRepo struct {
	store *Store
	st    *state
}

func (r *tripRepo) do(fn func(st *state) error) error {
	return access(r.store, r.st, fn)
}

func (r *tripRepo) Create(_ context.Context, trip *domain.Trip) error {
	const op = "memory.TripRepo.Create"

	return r.do(func(st *state) error {
		if _, ok := st.trips[trip.ID]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}

		trip.CreatedAt = time.Now().UTC()
		st.trips[trip.ID] = copyTrip(*trip)
		return nil
	})
}

func (r *tripRepo) Get(_ context.Context, id uuid.UUID) (*domain.Trip, error) {
	const op = "memory.TripRepo.Get"

	var out domain.Trip
	err := r.do(func(st *state) error {
		t, ok := st.trips[id]
		if !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}

		out = copyTrip(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// GetForUpdate is Get: a transaction already owns the whole store.
func (r *tripRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Trip, error) {
	return r.Get(ctx, id)
}

func (r *tripRepo) Search(_ context.Context, f domain.TripFilter) ([]domain.Trip, error) {
	out := []domain.Trip{}

	_ = r.do(func(st *state) error {
		for _, t := range st.trips {
			if f.From != "" && !strings.EqualFold(t.From, f.From) {
				continue
			}
			if f.To != "" && !strings.EqualFold(t.To, f.To) {
				continue
			}
			if f.Date != nil && !sameDay(t.Date, *f.Date) {
				continue
			}

			out = append(out, copyTrip(t))
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	return page(out, f.Limit, f.Offset), nil
}

func (r *tripRepo) UpdateDetails(_ context.Context, id uuid.UUID, d domain.TripDetails) error {
	return r.mutate("memory.TripRepo.UpdateDetails", id, func(t *domain.Trip) error {
		t.From = d.From
		t.To = d.To
		t.Date = d.Date
		t.Time = d.Time
		t.PriceCents = d.PriceCents
		t.Duration = d.Duration
		return nil
	})
}

func (r *tripRepo) Delete(_ context.Context, id uuid.UUID) error {
	const op = "memory.TripRepo.Delete"

	return r.do(func(st *state) error {
		if _, ok := st.trips[id]; !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}

		delete(st.trips, id)
		return nil
	})
}

func (r *tripRepo) RemoveSeats(_ context.Context, id uuid.UUID, seats []int) error {
	const op = "memory.TripRepo.RemoveSeats"

	return r.mutate(op, id, func(t *domain.Trip) error {
		if taken := domain.SeatsDifference(seats, t.AvailableSeats); len(taken) > 0 {
			return fmt.Errorf("%s:%w", op, &repository.SeatsUnavailableError{Seats: taken})
		}

		t.AvailableSeats = domain.SeatsDifference(t.AvailableSeats, seats)
		return nil
	})
}

func (r *tripRepo) AddSeats(_ context.Context, id uuid.UUID, seats []int) error {
	return r.mutate("memory.TripRepo.AddSeats", id, func(t *domain.Trip) error {
		t.AvailableSeats = domain.SeatsInRange(domain.SeatsUnion(t.AvailableSeats, seats), t.TotalSeats)
		return nil
	})
}

func (r *tripRepo) Initialize(_ context.Context, id uuid.UUID, total int) error {
	return r.mutate("memory.TripRepo.Initialize", id, func(t *domain.Trip) error {
		t.TotalSeats = total
		t.AvailableSeats = domain.SeatRange(total)
		return nil
	})
}

func (r *tripRepo) SetInventory(_ context.Context, id uuid.UUID, total int, available []int) error {
	return r.mutate("memory.TripRepo.SetInventory", id, func(t *domain.Trip) error {
		t.TotalSeats = total
		t.AvailableSeats = append([]int{}, available...)
		return nil
	})
}

// mutate applies fn to a copy of the trip and stores it only if fn succeeds.
func (r *tripRepo) mutate(op string, id uuid.UUID, fn func(t *domain.Trip) error) error {
	return r.do(func(st *state) error {
		t, ok := st.trips[id]
		if !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}

		t = copyTrip(t)
		if err := fn(&t); err != nil {
			return err
		}

		st.trips[id] = t
		return nil
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}

	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
