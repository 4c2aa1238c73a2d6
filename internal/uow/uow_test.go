package uow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	"github.com/kirinyoku/tripgo/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_RunsHooksAfterCommit(t *testing.T) {
	store := memory.New()
	u := uow.NewUoW(store)
	ctx := context.Background()

	trip := &domain.Trip{ID: uuid.New(), From: "A", To: "B", TotalSeats: 2, AvailableSeats: []int{1, 2}}

	var seen *domain.Trip
	err := u.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		if err := tx.Trips().Create(ctx, trip); err != nil {
			return err
		}
		after(func(ctx context.Context) {
			seen, _ = store.Trips().Get(ctx, trip.ID)
		})
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen, "hook should observe committed state")
	assert.Equal(t, trip.ID, seen.ID)
}

func TestDo_RollbackSkipsHooks(t *testing.T) {
	store := memory.New()
	u := uow.NewUoW(store)
	ctx := context.Background()

	boom := errors.New("boom")
	trip := &domain.Trip{ID: uuid.New(), TotalSeats: 1, AvailableSeats: []int{1}}

	called := false
	err := u.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		require.NoError(t, tx.Trips().Create(ctx, trip))
		after(func(context.Context) { called = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, called)

	_, err = store.Trips().Get(ctx, trip.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDo_CancelledContext(t *testing.T) {
	u := uow.NewUoW(memory.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := u.Do(ctx, func(context.Context, repository.Tx, func(uow.AfterCommit)) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
