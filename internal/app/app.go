package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tripgo/internal/auth"
	"github.com/kirinyoku/tripgo/internal/config"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/postgres"
	redisx "github.com/kirinyoku/tripgo/internal/redis"
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tripgo/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/reservation"
	httpgin "github.com/kirinyoku/tripgo/internal/transport/http/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	pool      *pgxpool.Pool
	rdb       *redis.Client
	publisher events.Publisher
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	deps := service.Deps{Logger: logger}

	var (
		idem   *redisrepo.IdempotencyStore
		pubsub *redisrepo.TripsPubSub
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.New(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.rdb = rdb

		pubsub = redisrepo.NewTripsPubSub(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)
		deps.Cache = redisrepo.New(rdb)
		deps.PubSub = pubsub
		deps.Limiter = redisrepo.NewSlidingWindowLimiter(
			rdb,
			"bookings",
			cfg.Booking.RateLimitPerMinute,
			time.Minute,
		)
	} else {
		logger.Warn("REDIS_ADDR not set: caching, rate limiting, idempotency and live seat updates are off")
	}

	if cfg.Kafka.Enabled {
		a.publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		deps.Events = a.publisher
		logger.Info("publishing booking events", "topic", cfg.Kafka.Topic)
	}

	services, err := service.NewServices(store, deps, service.Config{
		Reservation:  reservation.Config{MaxSeatsPerBooking: cfg.Booking.MaxSeatsPerBooking},
		TicketSecret: cfg.Auth.TicketSecret,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	router := httpgin.NewRouter(
		services,
		auth.NewVerifier(cfg.Auth.JWTSecret),
		idem,
		pubsub,
		logger,
	)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.Storage == config.StorageMemory {
		a.logger.Warn("using in-memory storage: data is lost on restart")
		return memory.New(), nil
	}

	pool, err := postgres.Open(ctx, postgres.Config{
		DSN:            a.cfg.Postgres.DSN(),
		MaxConns:       a.cfg.Postgres.MaxConns,
		MinConns:       a.cfg.Postgres.MinConns,
		ConnectTimeout: a.cfg.Postgres.ConnectTimeout,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.pool = pool

	if a.cfg.Postgres.MigrateOnStart {
		if err := a.migrate(ctx); err != nil {
			return nil, err
		}
	}

	return postgresrepo.NewStore(pool), nil
}

func (a *App) migrate(ctx context.Context) error {
	mg, err := NewMigrator(a.pool)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	defer mg.Close()

	if err := mg.Run(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if v, err := mg.Version(ctx); err == nil {
		a.logger.Info("database migrated", "version", v)
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// close releases the backing clients. The publisher goes first so queued
// events are flushed before the process exits.
func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close event publisher", "err", err)
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
