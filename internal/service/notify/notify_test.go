package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalledPublisher blocks until its context is done, like a writer waiting
// on an unreachable broker.
type stalledPublisher struct {
	deadline bool
}

func (p *stalledPublisher) PublishBooking(ctx context.Context, _ events.BookingEvent) error {
	_, p.deadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func (p *stalledPublisher) Close() error { return nil }

func TestBooking_StalledBrokerIsBounded(t *testing.T) {
	var buf bytes.Buffer
	pub := &stalledPublisher{}

	n := New(nil, nil, pub, slog.New(slog.NewTextHandler(&buf, nil)))
	n.timeout = 50 * time.Millisecond

	b := &domain.Booking{ID: uuid.New(), TripID: uuid.New(), Seats: []int{2}}

	start := time.Now()
	n.Booking(context.WithoutCancel(context.Background()), events.TypeBookingCreated, b)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, pub.deadline)
	assert.Contains(t, buf.String(), "publish booking event")
	assert.Contains(t, buf.String(), b.ID.String())
}

func TestNew_Defaults(t *testing.T) {
	n := New(nil, nil, nil, nil)

	require.NotNil(t, n.events)
	assert.Equal(t, publishTimeout, n.timeout)

	// Without redis or a broker every step is a no-op.
	n.TripChanged(context.Background(), uuid.New(), "booked")
	n.Booking(context.Background(), events.TypeBookingCancelled, &domain.Booking{ID: uuid.New()})
}
