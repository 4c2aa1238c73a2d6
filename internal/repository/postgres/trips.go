package postgresrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

const tripColumns = `id, origin, destination, trip_date, trip_time, price_cents,
	duration, total_seats, available_seats, created_at`

type TripRepo struct {
	pool Pool
	db   DB
}

func (r *TripRepo) With(db DB) *TripRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TripRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a trip and fills its CreatedAt.
func (r *TripRepo) Create(ctx context.Context, trip *domain.Trip) error {
	const op = "postgresrepo.TripRepo.Create"

	db := r.handle()

	err := db.QueryRow(ctx,
		`INSERT INTO trips(id, origin, destination, trip_date, trip_time,
		                   price_cents, duration, total_seats, available_seats)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::int[])
		 RETURNING created_at`,
		trip.ID, trip.From, trip.To, trip.Date, trip.Time,
		trip.PriceCents, trip.Duration, trip.TotalSeats, trip.AvailableSeats,
	).Scan(&trip.CreatedAt)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves a trip by its ID.
//
// Returns:
//   - *domain.Trip: the trip when found.
//   - error: repository.ErrNotFound if the trip is not found.
func (r *TripRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Trip, error) {
	const op = "postgresrepo.TripRepo.Get"

	t, err := scanTrip(r.handle().QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

// GetForUpdate retrieves a trip and locks its row. Only meaningful inside a
// transaction.
func (r *TripRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Trip, error) {
	const op = "postgresrepo.TripRepo.GetForUpdate"

	t, err := scanTrip(r.handle().QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

// Search lists trips matching the filter ordered by departure. Empty route
// fields and a nil date match everything. Routes compare case-insensitively
// by whole value, so % and _ are ordinary characters.
func (r *TripRepo) Search(ctx context.Context, f domain.TripFilter) ([]domain.Trip, error) {
	const op = "postgresrepo.TripRepo.Search"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+tripColumns+`
		 FROM trips
		 WHERE ($1 = '' OR lower(origin) = lower($1))
		   AND ($2 = '' OR lower(destination) = lower($2))
		   AND ($3::date IS NULL OR trip_date = $3::date)
		 ORDER BY trip_date, trip_time, id
		 LIMIT $4 OFFSET $5`,
		f.From, f.To, f.Date, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *TripRepo) UpdateDetails(ctx context.Context, id uuid.UUID, d domain.TripDetails) error {
	const op = "postgresrepo.TripRepo.UpdateDetails"

	tag, err := r.handle().Exec(ctx,
		`UPDATE trips
		 SET origin = $2, destination = $3, trip_date = $4, trip_time = $5,
		     price_cents = $6, duration = $7
		 WHERE id = $1`,
		id, d.From, d.To, d.Date, d.Time, d.PriceCents, d.Duration,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// Delete removes a trip. Bookings that reference it are left in place.
func (r *TripRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.TripRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// RemoveSeats removes seats from the trip's available set in one conditional
// statement: the row is only updated when every seat is still available.
//
// Returns:
//   - error: *repository.SeatsUnavailableError naming the taken seats.
//   - error: repository.ErrNotFound if the trip is not found.
func (r *TripRepo) RemoveSeats(ctx context.Context, id uuid.UUID, seats []int) error {
	const op = "postgresrepo.TripRepo.RemoveSeats"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE trips
		 SET available_seats = ARRAY(
		       SELECT s FROM unnest(available_seats) AS s
		       WHERE s <> ALL($2::int[])
		       ORDER BY s)
		 WHERE id = $1 AND available_seats @> $2::int[]`,
		id, seats,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var available []int
	if err := db.QueryRow(ctx,
		`SELECT available_seats FROM trips WHERE id = $1`,
		id,
	).Scan(&available); err != nil {
		return wrapDBErr(op, err)
	}

	taken := domain.SeatsDifference(seats, available)
	if len(taken) == 0 {
		taken = seats
	}

	return fmt.Errorf("%s:%w", op, &repository.SeatsUnavailableError{Seats: taken})
}

// AddSeats unions seats into the available set, dropping seats outside
// [1, total_seats]. Adding a seat that is already available is a no-op.
func (r *TripRepo) AddSeats(ctx context.Context, id uuid.UUID, seats []int) error {
	const op = "postgresrepo.TripRepo.AddSeats"

	tag, err := r.handle().Exec(ctx,
		`UPDATE trips
		 SET available_seats = ARRAY(
		       SELECT DISTINCT s FROM unnest(available_seats || $2::int[]) AS s
		       WHERE s BETWEEN 1 AND total_seats
		       ORDER BY s)
		 WHERE id = $1`,
		id, seats,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *TripRepo) Initialize(ctx context.Context, id uuid.UUID, total int) error {
	const op = "postgresrepo.TripRepo.Initialize"

	tag, err := r.handle().Exec(ctx,
		`UPDATE trips
		 SET total_seats = $2,
		     available_seats = ARRAY(SELECT generate_series(1, $2::int))
		 WHERE id = $1`,
		id, total,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *TripRepo) SetInventory(ctx context.Context, id uuid.UUID, total int, available []int) error {
	const op = "postgresrepo.TripRepo.SetInventory"

	tag, err := r.handle().Exec(ctx,
		`UPDATE trips SET total_seats = $2, available_seats = $3::int[] WHERE id = $1`,
		id, total, available,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func scanTrip(row pgx.Row) (*domain.Trip, error) {
	var t domain.Trip

	if err := row.Scan(
		&t.ID,
		&t.From,
		&t.To,
		&t.Date,
		&t.Time,
		&t.PriceCents,
		&t.Duration,
		&t.TotalSeats,
		&t.AvailableSeats,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}

	if t.AvailableSeats == nil {
		t.AvailableSeats = []int{}
	}

	return &t, nil
}
