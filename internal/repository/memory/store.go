// Package memory is an in-process storage driver. A transaction holds the
// store-wide lock from start to commit and works on a copy of the data that
// replaces the committed state only when the transaction succeeds, so
// transactions are serialized and never partially applied.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

type state struct {
	trips    map[uuid.UUID]domain.Trip
	bookings map[uuid.UUID]domain.Booking
	users    map[uuid.UUID]domain.UserSummary
}

func newState() *state {
	return &state{
		trips:    make(map[uuid.UUID]domain.Trip),
		bookings: make(map[uuid.UUID]domain.Booking),
		users:    make(map[uuid.UUID]domain.UserSummary),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for id, t := range s.trips {
		cp.trips[id] = copyTrip(t)
	}
	for id, b := range s.bookings {
		cp.bookings[id] = copyBooking(b)
	}
	for id, u := range s.users {
		cp.users[id] = u
	}
	return cp
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// RunTx runs fn against a private copy of the store and commits it if fn
// returns nil and ctx is still alive.
func (s *Store) RunTx(
	ctx context.Context,
	_ *repository.TxOptions,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()

	if err := fn(ctx, txStores{st: work}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.st = work

	return nil
}

func (s *Store) Trips() repository.Trips       { return &tripRepo{store: s} }
func (s *Store) Bookings() repository.Bookings { return &bookingRepo{store: s} }
func (s *Store) Queries() repository.Queries   { return &queryRepo{store: s} }

// PutUser records the summary shown in booking views for a user.
func (s *Store) PutUser(u domain.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.users[u.ID] = u
}

type txStores struct {
	st *state
}

func (t txStores) Trips() repository.Trips       { return &tripRepo{st: t.st} }
func (t txStores) Bookings() repository.Bookings { return &bookingRepo{st: t.st} }

// access runs fn on the transaction's state, or under the store lock on the
// committed state when used outside a transaction.
func access(store *Store, st *state, fn func(st *state) error) error {
	if st != nil {
		return fn(st)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	return fn(store.st)
}

func copyTrip(t domain.Trip) domain.Trip {
	t.AvailableSeats = append([]int{}, t.AvailableSeats...)
	return t
}

func copyBooking(b domain.Booking) domain.Booking {
	b.Seats = append([]int{}, b.Seats...)
	return b
}
