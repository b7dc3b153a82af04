package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var pnrPattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
var iataPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// PnrCode is the six-character passenger name record locator.
type PnrCode string

func NewPnrCode(s string) (PnrCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !pnrPattern.MatchString(s) {
		return "", &MalformedPayloadError{Field: "pnrCode", Reason: "must match [A-Z0-9]{6}"}
	}
	return PnrCode(s), nil
}

func (p PnrCode) String() string { return string(p) }

// FlightId is an opaque, bounded identifier for a scheduled flight.
type FlightId string

func NewFlightId(s string) (FlightId, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 50 {
		return "", &MalformedPayloadError{Field: "flightId", Reason: "must be 1-50 characters"}
	}
	return FlightId(s), nil
}

func (f FlightId) String() string { return string(f) }

// BookingId, SegmentId, PassengerId are UUIDs in canonical string form.
type BookingId string
type SegmentId string
type PassengerId string

func NewBookingId() BookingId   { return BookingId(uuid.New().String()) }
func NewSegmentId() SegmentId   { return SegmentId(uuid.New().String()) }
func NewPassengerId() PassengerId { return PassengerId(uuid.New().String()) }

// CabinClass identifies the cabin a segment's seat belongs to.
type CabinClass string

const (
	Economy  CabinClass = "economy"
	Business CabinClass = "business"
	First    CabinClass = "first"
)

func (c CabinClass) IsValid() bool {
	switch c {
	case Economy, Business, First:
		return true
	}
	return false
}

// PassengerType classifies a passenger for fare and document purposes.
type PassengerType string

const (
	Adult  PassengerType = "adult"
	Child  PassengerType = "child"
	Senior PassengerType = "senior"
	Infant PassengerType = "infant"
)

func (t PassengerType) IsValid() bool {
	switch t {
	case Adult, Child, Senior, Infant:
		return true
	}
	return false
}

// Gender is the passenger's stated gender for document purposes.
type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
	Other  Gender = "other"
)

func (g Gender) IsValid() bool {
	switch g {
	case Male, Female, Other:
		return true
	}
	return false
}

// Route is an origin/destination pair of IATA airport codes.
type Route struct {
	Origin      string
	Destination string
}

func NewRoute(origin, destination string) (Route, error) {
	origin, destination = strings.ToUpper(origin), strings.ToUpper(destination)
	if !iataPattern.MatchString(origin) || !iataPattern.MatchString(destination) {
		return Route{}, &MalformedPayloadError{Field: "route", Reason: "origin and destination must be IATA codes"}
	}
	if origin == destination {
		return Route{}, &MalformedPayloadError{Field: "route", Reason: "origin and destination must differ"}
	}
	return Route{Origin: origin, Destination: destination}, nil
}

// Schedule is a flight's planned departure/arrival pair.
type Schedule struct {
	Departure time.Time
	Arrival   time.Time
}

func NewSchedule(departure, arrival time.Time) (Schedule, error) {
	if !arrival.After(departure) {
		return Schedule{}, &MalformedPayloadError{Field: "schedule", Reason: "arrival must be after departure"}
	}
	return Schedule{Departure: departure, Arrival: arrival}, nil
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &MalformedPayloadError{Field: "email", Reason: fmt.Sprintf("%q is not a valid email address", email)}
	}
	return nil
}
