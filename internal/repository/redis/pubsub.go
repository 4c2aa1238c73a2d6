package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TripChange tells subscribers that a trip's seat map may have changed.
type TripChange struct {
	Type   string    `json:"type"`
	TripID uuid.UUID `json:"trip_id"`
	TsUnix int64     `json:"ts_unix"`
}

const (
	TripChangeSeats   = "seats_changed"
	TripChangeDetails = "trip_changed"
	TripChangeDeleted = "trip_deleted"
)

// TripsPubSub fans trip changes out over one Redis channel. A nil
// *TripsPubSub publishes nothing.
type TripsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewTripsPubSub(rdb *redis.Client) *TripsPubSub {
	return &TripsPubSub{
		rdb:     rdb,
		channel: ChannelTripsChanged(),
	}
}

func (p *TripsPubSub) PublishTripChanged(ctx context.Context, tripID uuid.UUID, kind string) error {
	if p == nil {
		return nil
	}

	b, err := json.Marshal(TripChange{
		Type:   kind,
		TripID: tripID,
		TsUnix: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every well-formed change until ctx is done.
// ready, if not nil, is closed once the subscription is active.
func (p *TripsPubSub) Subscribe(
	ctx context.Context,
	ready chan<- struct{},
	handler func(ctx context.Context, ch TripChange),
) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var change TripChange
			if err := json.Unmarshal([]byte(m.Payload), &change); err == nil &&
				change.TripID != uuid.Nil {
				handler(ctx, change)
			}
		}
	}
}
