// Package tickets renders boarding documents for active bookings: a QR code
// carrying a sealed booking reference, and a printable PDF around it.
package tickets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrBookingCancelled = errors.New("booking is cancelled")
	ErrInvalidCode      = errors.New("invalid ticket code")
)

const qrSize = 256

type Service struct {
	store  repository.Store
	sealer *sealer
}

func New(store repository.Store, secret string) (*Service, error) {
	const op = "service.tickets.New"

	if secret == "" {
		return nil, fmt.Errorf("%s: ticket secret is empty", op)
	}

	s, err := newSealer(secret)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Service{store: store, sealer: s}, nil
}

// QR returns a PNG QR code for the booking. Owner or admin only.
func (s *Service) QR(ctx context.Context, id domain.Identity, bookingID uuid.UUID) ([]byte, error) {
	const op = "service.tickets.QR"

	v, err := s.ticketable(ctx, id, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	png, err := s.qr(v.ID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return png, nil
}

// PDF returns a one-page ticket with trip, seats, payment state and the QR
// code. Owner or admin only.
func (s *Service) PDF(ctx context.Context, id domain.Identity, bookingID uuid.UUID) ([]byte, error) {
	const op = "service.tickets.PDF"

	v, err := s.ticketable(ctx, id, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	png, err := s.qr(v.ID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out, err := renderPDF(v, png)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Verify resolves a scanned code to its booking. Admin only. Only an active
// booking validates; a cancelled one yields ErrBookingCancelled.
func (s *Service) Verify(ctx context.Context, id domain.Identity, code string) (*domain.BookingView, error) {
	const op = "service.tickets.Verify"

	if err := id.RequireAdmin(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	bookingID, err := s.sealer.Open(strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	v, err := s.store.Queries().GetBookingView(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !v.Active() {
		return nil, fmt.Errorf("%s:%w", op, ErrBookingCancelled)
	}

	return v, nil
}

func (s *Service) ticketable(ctx context.Context, id domain.Identity, bookingID uuid.UUID) (*domain.BookingView, error) {
	if err := id.RequireUser(); err != nil {
		return nil, err
	}

	v, err := s.store.Queries().GetBookingView(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if !id.CanView(&v.Booking) {
		return nil, domain.ErrForbidden
	}

	if !v.Active() {
		return nil, ErrBookingCancelled
	}

	return v, nil
}

func (s *Service) qr(bookingID uuid.UUID) ([]byte, error) {
	code, err := s.sealer.Seal(bookingID)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(code, qrcode.Medium, qrSize)
}

func renderPDF(v *domain.BookingView, qrPNG []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("Trip ticket "+v.ID.String(), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "TRIP TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	for _, line := range ticketLines(v) {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 40, pdf.GetY()+4, 60, 60, false, opts, 0, "")

	pdf.SetY(pdf.GetY() + 70)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(0, 6, "Present this code when boarding.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func ticketLines(v *domain.BookingView) []string {
	seats := make([]string, len(v.Seats))
	for i, n := range v.Seats {
		seats[i] = strconv.Itoa(n)
	}

	paid := "not paid"
	if v.Payment.Paid {
		paid = "paid (" + v.Payment.TxnID + ")"
	}

	lines := []string{"Booking : " + v.ID.String()}

	if v.User != nil && v.User.Name != "" {
		lines = append(lines, "Passenger : "+v.User.Name)
	}

	if v.Trip != nil {
		total := v.Trip.PriceCents * int64(len(v.Seats))
		lines = append(lines,
			"Route : "+v.Trip.From+" - "+v.Trip.To,
			"Departure : "+v.Trip.Date.Format("2006-01-02")+" "+v.Trip.Time,
			fmt.Sprintf("Total : %d.%02d", total/100, total%100),
		)
	} else {
		lines = append(lines, "Route : trip no longer scheduled")
	}

	return append(lines,
		"Seats : "+strings.Join(seats, ", "),
		"Payment : "+v.Payment.Method+", "+paid,
	)
}
