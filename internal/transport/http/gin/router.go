package httpgin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/auth"
	"github.com/kirinyoku/tripgo/internal/domain"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/reservation"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter wires the HTTP API. idem and pubsub may be nil: without them
// Idempotency-Key is ignored and the seat stream answers 503.
func NewRouter(
	svcs *service.Services,
	verifier *auth.Verifier,
	idem *redisrepo.IdempotencyStore,
	pubsub *redisrepo.TripsPubSub,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS(), Authenticate(verifier))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	// Public API
	api.GET("/trips", handleSearchTrips(svcs))
	api.GET("/trips/:id", handleGetTrip(svcs))
	api.GET("/trips/:id/availability", handleGetAvailability(svcs))

	user := api.Group("", RequireUser())
	{
		user.GET("/trips/:id/seats", handleBookedSeats(svcs))
		user.GET("/trips/:id/seats/stream", handleSeatsStream(svcs, pubsub, logger))
		user.POST("/trips/:id/bookings", handleCreateBooking(svcs, idem))

		user.GET("/bookings", handleListMyBookings(svcs))
		user.GET("/bookings/:id", handleGetBooking(svcs))
		user.POST("/bookings/:id/payment", handlePayBooking(svcs))
		user.GET("/bookings/:id/ticket.png", handleTicketQR(svcs))
		user.GET("/bookings/:id/ticket.pdf", handleTicketPDF(svcs))
	}

	// Admin-API
	admin := api.Group("/admin", RequireAdmin())
	{
		admin.GET("/bookings", handleListAllBookings(svcs))
		admin.PUT("/bookings/:id/cancel", handleCancelBooking(svcs))
		admin.POST("/trips", handleCreateTrip(svcs))
		admin.PUT("/trips/:id", handleUpdateTrip(svcs))
		admin.DELETE("/trips/:id", handleDeleteTrip(svcs))
		admin.GET("/trips/:id/audit", handleAuditTrip(svcs))
		admin.GET("/tickets/verify", handleVerifyTicket(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Search trips
// @Tags     trips
// @Param    from    query  string  false  "departure city"
// @Param    to      query  string  false  "destination city"
// @Param    date    query  string  false  "YYYY-MM-DD"
// @Param    limit   query  int     false  "page size"
// @Param    offset  query  int     false  "offset"
// @Success  200  {array}   domain.Trip
// @Failure  400  {object}  ErrorResponse
// @Router   /trips [get]
func handleSearchTrips(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := domain.TripFilter{
			From:   strings.TrimSpace(c.Query("from")),
			To:     strings.TrimSpace(c.Query("to")),
			Limit:  parseIntDefault(c.Query("limit"), 0),
			Offset: parseIntDefault(c.Query("offset"), 0),
		}
		if s := c.Query("date"); s != "" {
			d, err := time.Parse(dateLayout, s)
			if err != nil {
				badRequest(c, "invalid date (YYYY-MM-DD)")
				return
			}
			f.Date = &d
		}

		trips, err := svcs.Query.SearchTrips(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, trips, "public, max-age=15", true)
	}
}

// @Summary  Get trip
// @Tags     trips
// @Param    id  path  string  true  "Trip ID (uuid)"
// @Success  200  {object}  domain.Trip
// @Failure  404  {object}  ErrorResponse
// @Router   /trips/{id} [get]
func handleGetTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Query.GetTrip(c.Request.Context(), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, t, "public, max-age=5", true)
	}
}

// @Summary  Get availability counters
// @Tags     trips
// @Param    id  path  string  true  "Trip ID (uuid)"
// @Success  200  {object}  domain.TripAvailability
// @Failure  404  {object}  ErrorResponse
// @Router   /trips/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Query.Availability(c.Request.Context(), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, a, "public, max-age=15", true)
	}
}

// @Summary   List booked seats
// @Tags      trips
// @Security  BearerAuth
// @Param     id  path  string  true  "Trip ID (uuid)"
// @Success   200  {object}  BookedSeatsResponse
// @Failure   404  {object}  ErrorResponse
// @Router    /trips/{id}/seats [get]
func handleBookedSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		seats, err := svcs.Query.BookedSeats(c.Request.Context(), identity(c), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, BookedSeatsResponse{
			TripID: tripID.String(),
			Seats:  seats,
		}, "private, max-age=5", true)
	}
}

// @Summary   Book seats (idempotent)
// @Tags      bookings
// @Security  BearerAuth
// @Param     id   path  string                true  "Trip ID (uuid)"
// @Param     req  body  CreateBookingRequest  true  "payload"
// @Header    201  {string}  Idempotency-Key  "echo"
// @Success   201  {object}  domain.Booking
// @Failure   400  {object}  ErrorResponse
// @Failure   404  {object}  ErrorResponse
// @Failure   409  {object}  ErrorResponse  "seats unavailable / idem in progress"
// @Failure   429  {object}  ErrorResponse  "rate limited"
// @Router    /trips/{id}/bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()
		id := identity(c)

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(id.UserID, tripID, idemKey)

			state, payload, err := idem.Begin(ctx, idemStorageKey)
			if err != nil {
				respondErr(c, err)
				return
			}
			switch state {
			case redisrepo.IdemDone:
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			case redisrepo.IdemInProgress:
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		b, err := svcs.Reservation.Book(ctx, id, reservation.BookRequest{
			TripID:        tripID,
			Seats:         req.Seats,
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			raw, _ := json.Marshal(b)
			_ = idem.SaveResult(ctx, idemStorageKey, string(raw))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, b)
	}
}

// @Summary   List my bookings
// @Tags      bookings
// @Security  BearerAuth
// @Success   200  {object}  domain.UserBookings
// @Router    /bookings [get]
func handleListMyBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Query.ListUserBookings(c.Request.Context(), identity(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary   Get booking
// @Tags      bookings
// @Security  BearerAuth
// @Param     id  path  string  true  "Booking ID (uuid)"
// @Success   200  {object}  domain.BookingView
// @Failure   403  {object}  ErrorResponse
// @Failure   404  {object}  ErrorResponse
// @Router    /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		v, err := svcs.Query.GetBooking(c.Request.Context(), identity(c), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// @Summary   Pay for a booking
// @Tags      bookings
// @Security  BearerAuth
// @Param     id   path  string          true   "Booking ID (uuid)"
// @Param     req  body  PaymentRequest  false  "payload"
// @Success   200  {object}  domain.Booking
// @Failure   409  {object}  ErrorResponse
// @Router    /bookings/{id}/payment [post]
func handlePayBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req PaymentRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		b, err := svcs.Payment.Pay(c.Request.Context(), identity(c), bookingID, req.Method)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary   Ticket QR code
// @Tags      tickets
// @Security  BearerAuth
// @Param     id  path  string  true  "Booking ID (uuid)"
// @Produce   png
// @Success   200
// @Router    /bookings/{id}/ticket.png [get]
func handleTicketQR(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		png, err := svcs.Tickets.QR(c.Request.Context(), identity(c), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Cache-Control", "private, no-store")
		c.Data(http.StatusOK, "image/png", png)
	}
}

// @Summary   Printable ticket
// @Tags      tickets
// @Security  BearerAuth
// @Param     id  path  string  true  "Booking ID (uuid)"
// @Produce   application/pdf
// @Success   200
// @Router    /bookings/{id}/ticket.pdf [get]
func handleTicketPDF(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		pdf, err := svcs.Tickets.PDF(c.Request.Context(), identity(c), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Cache-Control", "private, no-store")
		c.Header("Content-Disposition", `attachment; filename="ticket-`+bookingID.String()+`.pdf"`)
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}

// @Summary   List all bookings
// @Tags      admin
// @Security  BearerAuth
// @Param     limit   query  int  false  "page size"
// @Param     offset  query  int  false  "offset"
// @Success   200  {array}  domain.BookingView
// @Router    /admin/bookings [get]
func handleListAllBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Query.ListAllBookings(
			c.Request.Context(),
			identity(c),
			parseIntDefault(c.Query("limit"), 0),
			parseIntDefault(c.Query("offset"), 0),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary   Cancel booking
// @Tags      admin
// @Security  BearerAuth
// @Param     id  path  string  true  "Booking ID (uuid)"
// @Success   200  {object}  domain.Booking
// @Failure   404  {object}  ErrorResponse
// @Failure   409  {object}  ErrorResponse  "already cancelled"
// @Router    /admin/bookings/{id}/cancel [put]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Cancellation.Cancel(c.Request.Context(), identity(c), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary   Create trip
// @Tags      admin
// @Security  BearerAuth
// @Param     req  body  TripRequest  true  "payload"
// @Success   201  {object}  domain.Trip
// @Failure   400  {object}  ErrorResponse
// @Router    /admin/trips [post]
func handleCreateTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TripRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		d, err := req.details()
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		t, err := svcs.Admin.CreateTrip(c.Request.Context(), identity(c), d)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

// @Summary   Edit trip
// @Tags      admin
// @Security  BearerAuth
// @Param     id   path  string       true  "Trip ID (uuid)"
// @Param     req  body  TripRequest  true  "payload"
// @Success   200  {object}  domain.Trip
// @Failure   404  {object}  ErrorResponse
// @Failure   409  {object}  ErrorResponse  "capacity below sold seats"
// @Router    /admin/trips/{id} [put]
func handleUpdateTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req TripRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		d, err := req.details()
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		t, err := svcs.Admin.UpdateTrip(c.Request.Context(), identity(c), tripID, d)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary   Delete trip
// @Tags      admin
// @Security  BearerAuth
// @Param     id  path  string  true  "Trip ID (uuid)"
// @Success   204
// @Failure   404  {object}  ErrorResponse
// @Router    /admin/trips/{id} [delete]
func handleDeleteTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Admin.DeleteTrip(c.Request.Context(), identity(c), tripID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary   Audit trip seats
// @Tags      admin
// @Security  BearerAuth
// @Param     id  path  string  true  "Trip ID (uuid)"
// @Success   200  {object}  domain.SeatAudit
// @Failure   404  {object}  ErrorResponse
// @Router    /admin/trips/{id}/audit [get]
func handleAuditTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Admin.AuditTrip(c.Request.Context(), identity(c), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// @Summary   Verify ticket code
// @Tags      admin
// @Security  BearerAuth
// @Param     code  query  string  true  "code from the ticket QR"
// @Success   200  {object}  domain.BookingView
// @Failure   400  {object}  ErrorResponse
// @Failure   409  {object}  ErrorResponse  "booking cancelled"
// @Router    /admin/tickets/verify [get]
func handleVerifyTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.TrimSpace(c.Query("code"))
		if code == "" {
			badRequest(c, "code is required")
			return
		}
		v, err := svcs.Tickets.Verify(c.Request.Context(), identity(c), code)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
