package service

import (
	"fmt"
	"log/slog"

	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/repository"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service/admin"
	"github.com/kirinyoku/tripgo/internal/service/cancellation"
	"github.com/kirinyoku/tripgo/internal/service/notify"
	"github.com/kirinyoku/tripgo/internal/service/payment"
	"github.com/kirinyoku/tripgo/internal/service/query"
	"github.com/kirinyoku/tripgo/internal/service/reservation"
	"github.com/kirinyoku/tripgo/internal/service/tickets"
)

type Services struct {
	Reservation  *reservation.Service
	Cancellation *cancellation.Service
	Query        *query.Service
	Admin        *admin.Service
	Payment      *payment.Service
	Tickets      *tickets.Service
}

type Config struct {
	Reservation  reservation.Config
	Query        query.Config
	TicketSecret string
}

// Deps are the optional collaborators. Nil members disable the feature they
// back: caching, live updates, rate limiting or event publishing.
type Deps struct {
	Cache   *redisrepo.Cache
	PubSub  *redisrepo.TripsPubSub
	Limiter *redisrepo.SlidingWindowLimiter
	Events  events.Publisher
	Logger  *slog.Logger
}

func NewServices(store repository.Store, deps Deps, cfg Config) (*Services, error) {
	const op = "service.NewServices"

	n := notify.New(deps.Cache, deps.PubSub, deps.Events, deps.Logger)

	t, err := tickets.New(store, cfg.TicketSecret)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Services{
		Reservation:  reservation.New(store, deps.Limiter, n, cfg.Reservation),
		Cancellation: cancellation.New(store, n),
		Query:        query.New(store, deps.Cache, cfg.Query),
		Admin:        admin.New(store, n),
		Payment:      payment.New(store, n),
		Tickets:      t,
	}, nil
}
