package postgresrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tripgo/internal/domain"
)

const bookingViewSelect = `
	SELECT b.id, b.trip_id, b.user_id, b.seats, b.status,
	       b.payment_method, b.payment_paid, b.payment_txn_id, b.booking_date,
	       t.id, t.origin, t.destination, t.trip_date, t.trip_time, t.price_cents,
	       u.id, u.name, u.email
	FROM bookings b
	LEFT JOIN trips t ON t.id = b.trip_id
	LEFT JOIN users u ON u.id = b.user_id`

type QueryRepo struct {
	pool Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetBookingView retrieves a booking joined with its trip and user summaries.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: unique identifier of the booking to retrieve.
//
// Returns:
//   - *domain.BookingView: the booking when found; Trip is nil if the trip
//     was deleted.
//   - error: repository.ErrNotFound if the booking is not found.
func (r *QueryRepo) GetBookingView(ctx context.Context, id uuid.UUID) (*domain.BookingView, error) {
	const op = "postgresrepo.QueryRepo.GetBookingView"

	v, err := scanBookingView(r.handle().QueryRow(ctx,
		bookingViewSelect+` WHERE b.id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return v, nil
}

// ListBookingsByUser lists a user's bookings, newest first.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - userID: owner of the bookings.
//
// Returns:
//   - []domain.BookingView: the user's bookings, possibly empty.
//   - error: if the query fails.
func (r *QueryRepo) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.BookingView, error) {
	const op = "postgresrepo.QueryRepo.ListBookingsByUser"

	rows, err := r.handle().Query(ctx,
		bookingViewSelect+`
		WHERE b.user_id = $1
		ORDER BY b.booking_date DESC, b.id`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectBookingViews(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ListBookings lists every booking, newest first.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - limit, offset: pagination parameters.
//
// Returns:
//   - []domain.BookingView: a page of bookings, possibly empty.
//   - error: if the query fails.
func (r *QueryRepo) ListBookings(ctx context.Context, limit, offset int) ([]domain.BookingView, error) {
	const op = "postgresrepo.QueryRepo.ListBookings"

	rows, err := r.handle().Query(ctx,
		bookingViewSelect+`
		ORDER BY b.booking_date DESC, b.id
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectBookingViews(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func collectBookingViews(rows pgx.Rows) ([]domain.BookingView, error) {
	defer rows.Close()

	out := []domain.BookingView{}
	for rows.Next() {
		v, err := scanBookingView(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func scanBookingView(row pgx.Row) (*domain.BookingView, error) {
	var v domain.BookingView
	var status string

	var (
		tripID    uuid.NullUUID
		tripFrom  *string
		tripTo    *string
		tripDate  *time.Time
		tripTime  *string
		tripPrice *int64
		userID    uuid.NullUUID
		userName  *string
		userEmail *string
	)

	if err := row.Scan(
		&v.ID,
		&v.TripID,
		&v.UserID,
		&v.Seats,
		&status,
		&v.Payment.Method,
		&v.Payment.Paid,
		&v.Payment.TxnID,
		&v.BookingDate,
		&tripID,
		&tripFrom,
		&tripTo,
		&tripDate,
		&tripTime,
		&tripPrice,
		&userID,
		&userName,
		&userEmail,
	); err != nil {
		return nil, err
	}

	v.Status = domain.BookingStatus(status)

	if tripID.Valid {
		v.Trip = &domain.TripSummary{
			ID:         tripID.UUID,
			From:       deref(tripFrom),
			To:         deref(tripTo),
			Time:       deref(tripTime),
			PriceCents: deref(tripPrice),
		}
		if tripDate != nil {
			v.Trip.Date = *tripDate
		}
	}

	if userID.Valid {
		v.User = &domain.UserSummary{
			ID:    userID.UUID,
			Name:  deref(userName),
			Email: deref(userEmail),
		}
	}

	return &v, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
