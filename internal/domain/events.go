package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is the common envelope every domain event carries, per spec §3.
type Event interface {
	EventID() string
	OccurredAt() time.Time
	AggregateType() string
	AggregateId() string
	EventType() string
}

type baseEvent struct {
	ID         string    `json:"eventId"`
	At         time.Time `json:"occurredAt"`
	AggType    string    `json:"aggregateType"`
	AggID      string    `json:"aggregateId"`
	Type       string    `json:"eventType"`
}

func newBase(aggType, aggID, eventType string) baseEvent {
	return baseEvent{
		ID:      uuid.New().String(),
		At:      time.Now(),
		AggType: aggType,
		AggID:   aggID,
		Type:    eventType,
	}
}

func (b baseEvent) EventID() string        { return b.ID }
func (b baseEvent) OccurredAt() time.Time   { return b.At }
func (b baseEvent) AggregateType() string   { return b.AggType }
func (b baseEvent) AggregateId() string     { return b.AggID }
func (b baseEvent) EventType() string       { return b.Type }

type BookingCreated struct {
	baseEvent
	BookingID BookingId `json:"bookingId"`
	PnrCode   PnrCode   `json:"pnrCode"`
}

func NewBookingCreated(bookingID BookingId, pnr PnrCode) *BookingCreated {
	return &BookingCreated{baseEvent: newBase("booking", string(bookingID), "BookingCreated"), BookingID: bookingID, PnrCode: pnr}
}

type BookingConfirmed struct {
	baseEvent
	BookingID BookingId `json:"bookingId"`
}

func NewBookingConfirmed(bookingID BookingId) *BookingConfirmed {
	return &BookingConfirmed{baseEvent: newBase("booking", string(bookingID), "BookingConfirmed"), BookingID: bookingID}
}

type BookingCancelled struct {
	baseEvent
	BookingID BookingId `json:"bookingId"`
	Reason    string    `json:"reason"`
}

func NewBookingCancelled(bookingID BookingId, reason string) *BookingCancelled {
	return &BookingCancelled{baseEvent: newBase("booking", string(bookingID), "BookingCancelled"), BookingID: bookingID, Reason: reason}
}

type BookingExpired struct {
	baseEvent
	BookingID BookingId `json:"bookingId"`
	ExpiredAt time.Time `json:"expiredAt"`
}

func NewBookingExpired(bookingID BookingId, expiredAt time.Time) *BookingExpired {
	return &BookingExpired{baseEvent: newBase("booking", string(bookingID), "BookingExpired"), BookingID: bookingID, ExpiredAt: expiredAt}
}

type TicketIssued struct {
	baseEvent
	BookingID    BookingId `json:"bookingId"`
	TicketNumber string    `json:"ticketNumber"`
}

func NewTicketIssued(bookingID BookingId, ticketNumber string) *TicketIssued {
	return &TicketIssued{baseEvent: newBase("booking", string(bookingID), "TicketIssued"), BookingID: bookingID, TicketNumber: ticketNumber}
}

type SeatsHeld struct {
	baseEvent
	FlightId FlightId   `json:"flightId"`
	Cabin    CabinClass `json:"cabin"`
	Quantity int        `json:"quantity"`
}

func NewSeatsHeld(flightID FlightId, cabin CabinClass, n int) *SeatsHeld {
	return &SeatsHeld{baseEvent: newBase("flight_inventory", string(flightID), "SeatsHeld"), FlightId: flightID, Cabin: cabin, Quantity: n}
}

type SeatsReleased struct {
	baseEvent
	FlightId FlightId   `json:"flightId"`
	Cabin    CabinClass `json:"cabin"`
	Quantity int        `json:"quantity"`
}

func NewSeatsReleased(flightID FlightId, cabin CabinClass, n int) *SeatsReleased {
	return &SeatsReleased{baseEvent: newBase("flight_inventory", string(flightID), "SeatsReleased"), FlightId: flightID, Cabin: cabin, Quantity: n}
}
