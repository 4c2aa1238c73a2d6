package httpgin

import (
	"fmt"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
)

const dateLayout = "2006-01-02"

type CreateBookingRequest struct {
	Seats         []int  `json:"seats" binding:"required,min=1"`
	PaymentMethod string `json:"payment_method"`
}

type PaymentRequest struct {
	Method string `json:"method"`
}

type TripRequest struct {
	From       string `json:"from" binding:"required"`
	To         string `json:"to" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Time       string `json:"time"`
	PriceCents int64  `json:"price_cents" binding:"gte=0"`
	Duration   string `json:"duration"`
	TotalSeats int    `json:"total_seats" binding:"required,gt=0"`
}

func (r TripRequest) details() (domain.TripDetails, error) {
	date, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return domain.TripDetails{}, fmt.Errorf("invalid date (YYYY-MM-DD)")
	}

	return domain.TripDetails{
		From:       r.From,
		To:         r.To,
		Date:       date,
		Time:       r.Time,
		PriceCents: r.PriceCents,
		Duration:   r.Duration,
		TotalSeats: r.TotalSeats,
	}, nil
}

type ErrorResponse struct {
	Error string `json:"error"`
	Seats []int  `json:"seats,omitempty"`
}

type BookedSeatsResponse struct {
	TripID string `json:"trip_id"`
	Seats  []int  `json:"seats"`
}
