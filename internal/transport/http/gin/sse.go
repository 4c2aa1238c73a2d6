package httpgin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service"
)

const ssePingInterval = 25 * time.Second

// @Summary   Stream booked seats
// @Description  Server-sent events: "seats" with the booked seat list on
// @Description  connect and after every change, "trip_deleted" once the trip
// @Description  is gone, and "ping" as keep-alive.
// @Tags      trips
// @Security  BearerAuth
// @Param     id  path  string  true  "Trip ID (uuid)"
// @Produce   text/event-stream
// @Success   200
// @Failure   503  {object}  ErrorResponse
// @Router    /trips/{id}/seats/stream [get]
func handleSeatsStream(
	svcs *service.Services,
	pubsub *redisrepo.TripsPubSub,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if pubsub == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "live updates disabled"})
			return
		}
		tripID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		id := identity(c)

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// Subscribe before the first read so no change slips in between.
		changes := make(chan string, 16)
		ready := make(chan struct{})
		subErr := make(chan error, 1)
		go func() {
			subErr <- pubsub.Subscribe(ctx, ready, func(_ context.Context, ch redisrepo.TripChange) {
				if ch.TripID != tripID {
					return
				}
				select {
				case changes <- ch.Type:
				default:
				}
			})
		}()

		select {
		case <-ready:
		case err := <-subErr:
			logger.Warn("seat stream subscribe failed", "trip_id", tripID, "err", err)
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "live updates unavailable"})
			return
		case <-ctx.Done():
			return
		}

		seats, err := svcs.Query.BookedSeats(ctx, id, tripID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		send := func(event string, v any) {
			c.SSEvent(event, v)
			c.Writer.Flush()
		}
		send("seats", BookedSeatsResponse{TripID: tripID.String(), Seats: seats})

		ping := time.NewTicker(ssePingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-subErr:
				return
			case <-ping.C:
				send("ping", time.Now().Unix())
			case kind := <-changes:
				if kind == redisrepo.TripChangeDeleted {
					send("trip_deleted", gin.H{"trip_id": tripID.String()})
					return
				}
				seats, err := svcs.Query.BookedSeats(ctx, id, tripID)
				if err != nil {
					logger.Warn("seat stream refresh failed", "trip_id", tripID, "err", err)
					return
				}
				send("seats", BookedSeatsResponse{TripID: tripID.String(), Seats: seats})
			}
		}
	}
}
