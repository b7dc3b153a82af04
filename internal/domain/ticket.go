package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

type CouponStatus string

const (
	CouponOpen      CouponStatus = "open"
	CouponUsed      CouponStatus = "used"
	CouponVoid      CouponStatus = "void"
	CouponExchanged CouponStatus = "exchanged"
	CouponCheckedIn CouponStatus = "checked_in"
)

type Coupon struct {
	CouponNumber int
	FlightId     FlightId
	SeatNumber   *string
	Status       CouponStatus
}

type TicketStatus string

const (
	TicketIssuedStatus    TicketStatus = "issued"
	TicketRefunded        TicketStatus = "refunded"
	TicketVoided          TicketStatus = "voided"
	TicketExchangedStatus TicketStatus = "exchanged"
)

// Ticket is the post-confirmation contract-of-carriage record.
type Ticket struct {
	TicketNumber    string
	PnrCode         PnrCode
	Status          TicketStatus
	PassengerId     PassengerId
	PassengerName   string
	Coupons         []Coupon
	IssuedAt        time.Time
}

// NewTicketNumber allocates a random 13-digit numeric ticket number.
func NewTicketNumber() (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(13), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate ticket number: %w", err)
	}
	return fmt.Sprintf("%013d", n.Int64()%1e13), nil
}

// IssueTicketFor builds a Ticket with one coupon per segment, per spec
// §4.G ("allocate 13-digit number, one coupon per segment").
func IssueTicketFor(b *Booking, passenger Passenger, now time.Time) (*Ticket, error) {
	number, err := NewTicketNumber()
	if err != nil {
		return nil, err
	}
	coupons := make([]Coupon, 0, len(b.Segments))
	for i, seg := range b.Segments {
		coupons = append(coupons, Coupon{
			CouponNumber: i + 1,
			FlightId:     seg.FlightId,
			SeatNumber:   seg.SeatNumber,
			Status:       CouponOpen,
		})
	}
	return &Ticket{
		TicketNumber:  number,
		PnrCode:       b.PnrCode,
		Status:        TicketIssuedStatus,
		PassengerId:   passenger.ID,
		PassengerName: passenger.FirstName + " " + passenger.LastName,
		Coupons:       coupons,
		IssuedAt:      now,
	}, nil
}
