package domain

import (
	"time"
)

// BookingStatus is the lifecycle state of a Booking, per spec §4.C:
// Held (initial) -> {Confirmed, Cancelled, Expired}; Confirmed -> {Ticketed,
// Cancelled}; Ticketed/Cancelled/Expired terminal.
type BookingStatus string

const (
	BookingHeld      BookingStatus = "held"
	BookingConfirmedStatus BookingStatus = "confirmed"
	BookingTicketed  BookingStatus = "ticketed"
	BookingCancelledStatus BookingStatus = "cancelled"
	BookingExpiredStatus BookingStatus = "expired"
)

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingTicketed, BookingCancelledStatus, BookingExpiredStatus:
		return true
	}
	return false
}

// Passenger is a person named on the booking's PNR.
type Passenger struct {
	ID          PassengerId
	FirstName   string
	LastName    string
	Email       string
	DateOfBirth *time.Time
	Gender      Gender
	Type        PassengerType
}

func (p Passenger) Validate(now time.Time) error {
	if p.FirstName == "" || p.LastName == "" {
		return &MalformedPayloadError{Field: "passenger.name", Reason: "first and last name are required"}
	}
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(now) {
		return &MalformedPayloadError{Field: "passenger.dateOfBirth", Reason: "must not be in the future"}
	}
	if !p.Gender.IsValid() {
		return &MalformedPayloadError{Field: "passenger.gender", Reason: string(p.Gender)}
	}
	if !p.Type.IsValid() {
		return &MalformedPayloadError{Field: "passenger.type", Reason: string(p.Type)}
	}
	return nil
}

// BookingSegment is one flight leg within a booking.
type BookingSegment struct {
	ID         SegmentId
	FlightId   FlightId
	Cabin      CabinClass
	Price      Money
	SeatNumber *string
}

// Booking is the aggregate root for a passenger's reservation, from hold
// through ticketing or termination.
type Booking struct {
	ID         BookingId
	PnrCode    PnrCode
	Status     BookingStatus
	Passengers []Passenger
	Segments   []BookingSegment
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	Version    int
}

// CreateBooking builds a new Held booking with expiresAt = now + ttl.
func CreateBooking(id BookingId, pnr PnrCode, passengers []Passenger, segments []BookingSegment, now time.Time, ttl time.Duration) (*Booking, []Event, error) {
	if len(passengers) == 0 {
		return nil, nil, &MalformedPayloadError{Field: "passengers", Reason: "must not be empty"}
	}
	if len(segments) == 0 {
		return nil, nil, &MalformedPayloadError{Field: "segments", Reason: "must not be empty"}
	}
	currency := segments[0].Price.Currency
	for _, seg := range segments {
		if seg.Price.Currency != currency {
			return nil, nil, &CurrencyMismatchError{Expected: string(currency), Actual: string(seg.Price.Currency)}
		}
	}
	for _, p := range passengers {
		if err := p.Validate(now); err != nil {
			return nil, nil, err
		}
	}

	expiresAt := now.Add(ttl)
	b := &Booking{
		ID:         id,
		PnrCode:    pnr,
		Status:     BookingHeld,
		Passengers: passengers,
		Segments:   segments,
		ExpiresAt:  &expiresAt,
		CreatedAt:  now,
		Version:    0,
	}
	return b, []Event{NewBookingCreated(id, pnr)}, nil
}

func (b *Booking) clone() *Booking {
	c := *b
	c.Passengers = append([]Passenger(nil), b.Passengers...)
	c.Segments = append([]BookingSegment(nil), b.Segments...)
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Confirm transitions Held -> Confirmed. now must be strictly before
// expiresAt; at exactly expiresAt the booking is considered expired
// (spec §4.C tie-break: strict less-than).
func (b *Booking) Confirm(now time.Time) (*Booking, []Event, error) {
	if b.Status != BookingHeld {
		return nil, nil, &BookingStatusError{Expected: string(BookingHeld), Actual: string(b.Status)}
	}
	if b.ExpiresAt == nil || !now.Before(*b.ExpiresAt) {
		return nil, nil, ErrBookingExpired
	}
	next := b.clone()
	next.Status = BookingConfirmedStatus
	next.ExpiresAt = nil
	next.Version = b.Version + 1
	return next, []Event{NewBookingConfirmed(b.ID)}, nil
}

// IssueTicket transitions Confirmed -> Ticketed.
func (b *Booking) IssueTicket(ticketNumber string) (*Booking, []Event, error) {
	if b.Status != BookingConfirmedStatus {
		return nil, nil, &BookingStatusError{Expected: string(BookingConfirmedStatus), Actual: string(b.Status)}
	}
	next := b.clone()
	next.Status = BookingTicketed
	next.Version = b.Version + 1
	return next, []Event{NewTicketIssued(b.ID, ticketNumber)}, nil
}

// Cancel transitions any non-terminal status to Cancelled.
func (b *Booking) Cancel(reason string) (*Booking, []Event, error) {
	if b.Status.IsTerminal() {
		return nil, nil, &BookingStatusError{Expected: "non-terminal", Actual: string(b.Status)}
	}
	next := b.clone()
	next.Status = BookingCancelledStatus
	next.ExpiresAt = nil
	next.Version = b.Version + 1
	return next, []Event{NewBookingCancelled(b.ID, reason)}, nil
}

// MarkExpired is a no-op (returns b unchanged, no events) if the booking
// has no expiresAt; otherwise transitions to Expired.
func (b *Booking) MarkExpired(now time.Time) (*Booking, []Event, error) {
	if b.ExpiresAt == nil {
		return b, nil, nil
	}
	next := b.clone()
	next.Status = BookingExpiredStatus
	expiredAt := *b.ExpiresAt
	next.ExpiresAt = nil
	next.Version = b.Version + 1
	return next, []Event{NewBookingExpired(b.ID, expiredAt)}, nil
}

// IsExpired reports whether the booking would expire as of now (strict
// less-than tie-break identical to Confirm's check).
func (b *Booking) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}
