package query

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTrip_SeatMapCachedBriefly(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.New()
	trip := &domain.Trip{
		ID:             uuid.New(),
		From:           "Kyiv",
		To:             "Lviv",
		Date:           time.Now().AddDate(0, 0, 1),
		Time:           "09:00",
		TotalSeats:     3,
		AvailableSeats: []int{1, 2, 3},
	}
	require.NoError(t, store.Trips().Create(ctx, trip))

	s := New(store, redisrepo.New(rdb), Config{})

	got, err := s.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got.AvailableSeats)

	key := redisrepo.KeyTripSummary(trip.ID)
	require.True(t, mr.Exists(key))
	assert.Equal(t, 5*time.Second, mr.TTL(key))

	// A seat map changed without invalidation is served stale only until the
	// entry expires.
	require.NoError(t, store.Trips().RemoveSeats(ctx, trip.ID, []int{2}))

	got, err = s.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got.AvailableSeats)

	mr.FastForward(5 * time.Second)

	got, err = s.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got.AvailableSeats)
}

func TestNew_Defaults(t *testing.T) {
	s := New(memory.New(), nil, Config{})

	assert.Equal(t, 5*time.Second, s.cfg.TripTTL)
	assert.Equal(t, 15*time.Second, s.cfg.AvailabilityTTL)
	assert.Equal(t, 50, s.cfg.DefaultPage)
}
