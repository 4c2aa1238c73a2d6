package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/tripgo/internal/repository"
)

// DB is satisfied by a pool, a connection and a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Pool is the part of *pgxpool.Pool the store needs.
type Pool interface {
	DB
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Store struct {
	pool     Pool
	trips    *TripRepo
	bookings *BookingRepo
	queries  *QueryRepo
}

var _ repository.Store = (*Store)(nil)

func NewStore(pool Pool) *Store {
	return &Store{
		pool:     pool,
		trips:    &TripRepo{pool: pool},
		bookings: &BookingRepo{pool: pool},
		queries:  &QueryRepo{pool: pool},
	}
}

// RunTx runs fn in a read committed transaction. Reservation and release
// lock the trip row with SELECT ... FOR UPDATE, so a transaction that waited
// on the lock re-reads the committed row instead of failing to serialize.
// Read-only transactions get a repeatable read snapshot.
func (s *Store) RunTx(
	ctx context.Context,
	opts *repository.TxOptions,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	const op = "postgresrepo.Store.RunTx"

	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil && opts.ReadOnly {
		txOpts.IsoLevel = pgx.RepeatableRead
		txOpts.AccessMode = pgx.ReadOnly
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return wrapDBErr(op, err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, txStores{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr(op+".commit", err)
	}

	return nil
}

func (s *Store) Trips() repository.Trips       { return s.trips }
func (s *Store) Bookings() repository.Bookings { return s.bookings }
func (s *Store) Queries() repository.Queries   { return s.queries }

type txStores struct {
	tx    DB
	store *Store
}

func (t txStores) Trips() repository.Trips       { return t.store.trips.With(t.tx) }
func (t txStores) Bookings() repository.Bookings { return t.store.bookings.With(t.tx) }
