package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/kirinyoku/tripgo/internal/repository/postgres/migrations"
	"github.com/pressly/goose/v3"
)

// Migrator applies the embedded goose migrations over a pgx pool.
type Migrator struct {
	db *sql.DB
}

func NewMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	const op = "app.NewMigrator"

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// goose works on *sql.DB; this one shares the pool's connections.
	return &Migrator{db: stdlib.OpenDBFromPool(pool)}, nil
}

// Run applies every pending migration.
func (mg *Migrator) Run(ctx context.Context) error {
	const op = "app.Migrator.Run"

	if err := goose.UpContext(ctx, mg.db, "."); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (mg *Migrator) Version(ctx context.Context) (int64, error) {
	const op = "app.Migrator.Version"

	v, err := goose.GetDBVersionContext(ctx, mg.db)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return v, nil
}

// Close closes the sql.DB wrapper. The pool itself stays open.
func (mg *Migrator) Close() error {
	if mg.db != nil {
		return mg.db.Close()
	}
	return nil
}
