// Package notify fans committed changes out to caches, live subscribers and
// the event stream. Every step is best effort: failures are logged and never
// undo the change that was committed.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
)

// publishTimeout caps each outbound step. Hooks run after commit on a
// context that is never cancelled, so nothing else bounds them.
const publishTimeout = 2 * time.Second

type Notifier struct {
	cache   *redisrepo.Cache
	pubsub  *redisrepo.TripsPubSub
	events  events.Publisher
	log     *slog.Logger
	timeout time.Duration
}

// New builds a Notifier. Any of cache, pubsub and pub may be nil.
func New(
	cache *redisrepo.Cache,
	pubsub *redisrepo.TripsPubSub,
	pub events.Publisher,
	logger *slog.Logger,
) *Notifier {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		cache:   cache,
		pubsub:  pubsub,
		events:  pub,
		log:     logger,
		timeout: publishTimeout,
	}
}

// TripChanged drops the trip's cached projections and tells subscribers.
func (n *Notifier) TripChanged(ctx context.Context, tripID uuid.UUID, kind string) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.cache.InvalidateTrip(ctx, tripID); err != nil {
		n.log.Warn("invalidate trip cache", slog.String("trip_id", tripID.String()), slog.Any("err", err))
	}

	if err := n.pubsub.PublishTripChanged(ctx, tripID, kind); err != nil {
		n.log.Warn("publish trip change", slog.String("trip_id", tripID.String()), slog.Any("err", err))
	}
}

// Booking publishes a lifecycle event for b.
func (n *Notifier) Booking(ctx context.Context, kind string, b *domain.Booking) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.events.PublishBooking(ctx, events.NewBookingEvent(kind, b)); err != nil {
		n.log.Warn("publish booking event",
			slog.String("type", kind),
			slog.String("booking_id", b.ID.String()),
			slog.Any("err", err),
		)
	}
}
