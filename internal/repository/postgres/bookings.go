package postgresrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

const bookingColumns = `id, trip_id, user_id, seats, status,
	payment_method, payment_paid, payment_txn_id, booking_date`

type BookingRepo struct {
	pool Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.Create"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO bookings(id, trip_id, user_id, seats, status,
		                      payment_method, payment_paid, payment_txn_id, booking_date)
		 VALUES ($1, $2, $3, $4::int[], $5, $6, $7, $8, $9)`,
		b.ID, b.TripID, b.UserID, b.Seats, string(b.Status),
		b.Payment.Method, b.Payment.Paid, b.Payment.TxnID, b.BookingDate,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves a booking by its ID.
//
// Returns:
//   - *domain.Booking: the booking when found.
//   - error: repository.ErrNotFound if the booking is not found.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.Get"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.GetForUpdate"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	const op = "postgresrepo.BookingRepo.UpdateStatus"

	tag, err := r.handle().Exec(ctx,
		`UPDATE bookings SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) UpdatePayment(ctx context.Context, id uuid.UUID, p domain.PaymentInfo) error {
	const op = "postgresrepo.BookingRepo.UpdatePayment"

	tag, err := r.handle().Exec(ctx,
		`UPDATE bookings
		 SET payment_method = $2, payment_paid = $3, payment_txn_id = $4
		 WHERE id = $1`,
		id, p.Method, p.Paid, p.TxnID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) ListActiveByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListActiveByTrip"

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE trip_id = $1 AND status = 'booked'
		 ORDER BY booking_date, id`,
		tripID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *BookingRepo) ActiveSeats(ctx context.Context, tripID uuid.UUID) ([]int, error) {
	const op = "postgresrepo.BookingRepo.ActiveSeats"

	rows, err := r.handle().Query(ctx,
		`SELECT s
		 FROM bookings b, unnest(b.seats) AS s
		 WHERE b.trip_id = $1 AND b.status = 'booked'
		 ORDER BY s`,
		tripID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []int{}
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var status string

	if err := row.Scan(
		&b.ID,
		&b.TripID,
		&b.UserID,
		&b.Seats,
		&status,
		&b.Payment.Method,
		&b.Payment.Paid,
		&b.Payment.TxnID,
		&b.BookingDate,
	); err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)

	return &b, nil
}
