// Package dto holds the wire-shapes for the HTTP surface, kept separate
// from both the domain aggregates and the read-side query package so
// none of the three needs to know about the others' internals.
package dto

import (
	"time"

	"github.com/bakate/avionics/internal/domain"
)

// PassengerRequest is the wire shape of one passenger in BookFlightRequest.
type PassengerRequest struct {
	FirstName   string     `json:"firstName" binding:"required"`
	LastName    string     `json:"lastName" binding:"required"`
	Email       string     `json:"email" binding:"required"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Gender      string     `json:"gender" binding:"required"`
	Type        string     `json:"type" binding:"required"`
}

// SegmentRequest is the wire shape of one requested flight leg.
type SegmentRequest struct {
	FlightId   string  `json:"flightId" binding:"required"`
	Cabin      string  `json:"cabin" binding:"required"`
	SeatNumber *string `json:"seatNumber,omitempty"`
}

// BookFlightRequest is the POST /bookings request body.
type BookFlightRequest struct {
	Passengers []PassengerRequest `json:"passengers" binding:"required,min=1"`
	Segments   []SegmentRequest   `json:"segments" binding:"required,min=1"`
}

// CancelRequest is the POST /bookings/:id/cancel request body.
type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PassengerSummary is the passenger shape nested in BookingSummary.
type PassengerSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// SegmentSummary is the segment shape nested in BookingSummary.
type SegmentSummary struct {
	ID            string  `json:"id"`
	FlightId      string  `json:"flightId"`
	Cabin         string  `json:"cabin"`
	PriceAmount   int64   `json:"priceAmount"`
	PriceCurrency string  `json:"priceCurrency"`
	SeatNumber    *string `json:"seatNumber,omitempty"`
}

// BookingSummary is the response shape shared by every booking-returning
// route, whether built fresh from a just-mutated aggregate (write routes)
// or projected from the read side (query routes).
type BookingSummary struct {
	ID         string             `json:"id"`
	PnrCode    string             `json:"pnrCode"`
	Status     string             `json:"status"`
	ExpiresAt  *time.Time         `json:"expiresAt,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	Passengers []PassengerSummary `json:"passengers"`
	Segments   []SegmentSummary   `json:"segments"`
}

// BookFlightResponse is the POST /bookings success payload.
type BookFlightResponse struct {
	Booking     BookingSummary `json:"booking"`
	CheckoutUrl string         `json:"checkoutUrl,omitempty"`
	CheckoutId  string         `json:"checkoutId,omitempty"`
}

// PassengerBookingHistory is one line in GET /bookings/passenger/:id.
type PassengerBookingHistory struct {
	BookingID string    `json:"bookingId"`
	PnrCode   string    `json:"pnrCode"`
	Status    string    `json:"status"`
	FlightId  string    `json:"flightId"`
	Cabin     string    `json:"cabin"`
	CreatedAt time.Time `json:"createdAt"`
}

// WebhookPayload is the POST /webhooks/polar request body, per spec §6's
// canonical `checkout.updated` event (§9 notes `checkout.succeeded` as a
// legacy alias to be treated the same).
type WebhookPayload struct {
	Type string       `json:"type"`
	Data WebhookData  `json:"data"`
}

type WebhookData struct {
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// FromBooking builds a BookingSummary directly from a just-mutated
// aggregate, for the write routes (POST /bookings, confirm, cancel) that
// never need a fresh SQL round-trip to answer their own caller.
func FromBooking(b *domain.Booking) BookingSummary {
	passengers := make([]PassengerSummary, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		passengers = append(passengers, PassengerSummary{
			ID: string(p.ID), FirstName: p.FirstName, LastName: p.LastName, Email: p.Email,
		})
	}
	segments := make([]SegmentSummary, 0, len(b.Segments))
	for _, s := range b.Segments {
		segments = append(segments, SegmentSummary{
			ID: string(s.ID), FlightId: string(s.FlightId), Cabin: string(s.Cabin),
			PriceAmount: s.Price.Amount, PriceCurrency: string(s.Price.Currency), SeatNumber: s.SeatNumber,
		})
	}
	return BookingSummary{
		ID:         string(b.ID),
		PnrCode:    string(b.PnrCode),
		Status:     string(b.Status),
		ExpiresAt:  b.ExpiresAt,
		CreatedAt:  b.CreatedAt,
		Passengers: passengers,
		Segments:   segments,
	}
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}
