package redisrepo

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "tripgo:v1"

func KeyTripSummary(tripID uuid.UUID) string {
	return fmt.Sprintf("%s:trip:%s:summary", ns, tripID)
}

func KeyTripAvailability(tripID uuid.UUID) string {
	return fmt.Sprintf("%s:trip:%s:availability", ns, tripID)
}

func KeyTripBookedSeats(tripID uuid.UUID) string {
	return fmt.Sprintf("%s:trip:%s:booked", ns, tripID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

// KeyIdemBooking scopes an Idempotency-Key to the caller and the trip.
func KeyIdemBooking(userID, tripID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s:%s:%s", ns, userID, tripID, idemKey)
}

func ChannelTripsChanged() string {
	return ns + ":trips:changed"
}
