// Package payment records mock payments against bookings. No gateway is
// contacted; a payment always succeeds for an eligible booking.
package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/kirinyoku/tripgo/internal/service/notify"
	"github.com/kirinyoku/tripgo/internal/uow"
)

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrBookingCancelled = errors.New("booking is cancelled")
	ErrAlreadyPaid      = errors.New("booking is already paid")
)

type Service struct {
	notify *notify.Notifier
	uow    *uow.UoW
}

func New(store repository.Store, n *notify.Notifier) *Service {
	return &Service{
		notify: n,
		uow:    uow.NewUoW(store),
	}
}

// Pay marks the caller's booking as paid with a generated transaction ID.
// An empty method keeps the one chosen at booking time.
func (s *Service) Pay(ctx context.Context, id domain.Identity, bookingID uuid.UUID, method string) (*domain.Booking, error) {
	const op = "service.payment.Pay"

	if err := id.RequireUser(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var booking *domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		switch {
		case b.UserID != id.UserID:
			return domain.ErrForbidden
		case !b.Active():
			return ErrBookingCancelled
		case b.Payment.Paid:
			return ErrAlreadyPaid
		}

		p := b.Payment
		if m := strings.TrimSpace(method); m != "" {
			p.Method = m
		}
		if p.Method == "" {
			p.Method = domain.DefaultPaymentMethod
		}
		p.Paid = true
		p.TxnID = newTxnID()

		if err := tx.Bookings().UpdatePayment(ctx, b.ID, p); err != nil {
			return err
		}

		b.Payment = p
		booking = b

		after(func(ctx context.Context) {
			s.notify.Booking(ctx, events.TypeBookingPaid, b)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return booking, nil
}

func newTxnID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "TXN-" + strings.ToUpper(hex.EncodeToString(b))
}
