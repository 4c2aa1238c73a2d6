package httpgin

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/kirinyoku/tripgo/internal/service/admin"
	"github.com/kirinyoku/tripgo/internal/service/cancellation"
	"github.com/kirinyoku/tripgo/internal/service/payment"
	"github.com/kirinyoku/tripgo/internal/service/query"
	"github.com/kirinyoku/tripgo/internal/service/reservation"
	"github.com/kirinyoku/tripgo/internal/service/tickets"
)

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		seatsErr *reservation.SeatsUnavailableError
		soldErr  *admin.SeatsBelowSoldError
		rlErr    *reservation.RateLimitedError
	)

	switch {
	// access
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})

	// reservation service
	case errors.As(err, &seatsErr):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seats unavailable", Seats: seatsErr.Seats})
	case errors.As(err, &rlErr):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rlErr.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
	case errors.Is(err, reservation.ErrInvalidSeats):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: publicMessage(err)})
	case errors.Is(err, reservation.ErrTripNotFound),
		errors.Is(err, query.ErrTripNotFound),
		errors.Is(err, admin.ErrTripNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "trip not found"})

	// admin service
	case errors.As(err, &soldErr):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "total seats below seats already sold", Seats: soldErr.Seats})
	case errors.Is(err, admin.ErrInvalidTrip):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: publicMessage(err)})
	case errors.Is(err, admin.ErrTripConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "trip conflict"})

	// bookings
	case errors.Is(err, cancellation.ErrBookingNotFound),
		errors.Is(err, query.ErrBookingNotFound),
		errors.Is(err, payment.ErrBookingNotFound),
		errors.Is(err, tickets.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	case errors.Is(err, cancellation.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking already cancelled"})
	case errors.Is(err, payment.ErrBookingCancelled),
		errors.Is(err, tickets.ErrBookingCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking is cancelled"})
	case errors.Is(err, payment.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking already paid"})
	case errors.Is(err, query.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: publicMessage(err)})
	case errors.Is(err, tickets.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ticket code"})

	// storage
	case errors.Is(err, repository.ErrTxAborted):
		_ = c.Error(err)
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "concurrent update, retry"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// publicMessage drops the "pkg.Type.Method:" prefixes that wrapping adds.
func publicMessage(err error) string {
	msg := err.Error()
	for {
		i := strings.IndexByte(msg, ':')
		if i <= 0 || i+1 >= len(msg) || msg[i+1] == ' ' || strings.ContainsRune(msg[:i], ' ') {
			return msg
		}
		msg = msg[i+1:]
	}
}
