package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBooking(t *testing.T, now time.Time, ttl time.Duration) *Booking {
	t.Helper()
	price, err := NewMoney(10000, EUR)
	require.NoError(t, err)

	passengers := []Passenger{{
		ID:        NewPassengerId(),
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Gender:    Female,
		Type:      Adult,
	}}
	segments := []BookingSegment{{
		ID:       NewSegmentId(),
		FlightId: "AF123",
		Cabin:    Economy,
		Price:    price,
	}}

	pnr, err := NewPnrCode("AB12CD")
	require.NoError(t, err)

	b, events, err := CreateBooking(NewBookingId(), pnr, passengers, segments, now, ttl)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "BookingCreated", events[0].EventType())
	return b
}

func TestBooking_CreateIsHeldWithExpiry(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)

	assert.Equal(t, BookingHeld, b.Status)
	require.NotNil(t, b.ExpiresAt)
	assert.WithinDuration(t, now.Add(15*time.Minute), *b.ExpiresAt, time.Second)
}

func TestBooking_ConfirmTwiceFailsSecondTime(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)

	confirmed, events, err := b.Confirm(now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, BookingConfirmedStatus, confirmed.Status)
	assert.Nil(t, confirmed.ExpiresAt)

	_, _, err = confirmed.Confirm(now.Add(2 * time.Minute))
	require.Error(t, err)
	var statusErr *BookingStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, string(BookingHeld), statusErr.Expected)
}

func TestBooking_ConfirmAtExactExpiryFails(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)

	// Tie-break: expiresAt == now is NOT confirmable (strict less-than).
	_, _, err := b.Confirm(*b.ExpiresAt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBookingExpired)
}

func TestBooking_ConfirmAfterExpiryFails(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)

	_, _, err := b.Confirm(b.ExpiresAt.Add(time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBookingExpired)
}

func TestBooking_TerminalStatesRejectAnyTransition(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)

	cancelled, _, err := b.Cancel("customer request")
	require.NoError(t, err)
	assert.Equal(t, BookingCancelledStatus, cancelled.Status)
	assert.Nil(t, cancelled.ExpiresAt)

	_, _, err = cancelled.Cancel("again")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBookingStatus)

	_, _, err = cancelled.Confirm(now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBookingStatus)
}

func TestBooking_CancelClearsExpiresAt(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)

	cancelled, events, err := b.Cancel("payment declined")
	require.NoError(t, err)
	assert.Equal(t, BookingCancelledStatus, cancelled.Status)
	assert.Nil(t, cancelled.ExpiresAt)
	require.Len(t, events, 1)
	cancelEvt, ok := events[0].(*BookingCancelled)
	require.True(t, ok)
	assert.Equal(t, "payment declined", cancelEvt.Reason)
}

func TestBooking_MarkExpiredIsNoOpWithoutExpiresAt(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)
	confirmed, _, err := b.Confirm(now.Add(time.Second))
	require.NoError(t, err)
	require.Nil(t, confirmed.ExpiresAt)

	same, events, err := confirmed.MarkExpired(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, events)
	assert.Equal(t, confirmed.Status, same.Status)
}

func TestBooking_MarkExpiredTransitionsHeldPastExpiry(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)

	expired, events, err := b.MarkExpired(b.ExpiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, BookingExpiredStatus, expired.Status)
	assert.Nil(t, expired.ExpiresAt)
	require.Len(t, events, 1)
	assert.Equal(t, "BookingExpired", events[0].EventType())
}

func TestBooking_IssueTicketRequiresConfirmed(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)

	_, _, err := b.IssueTicket("1234567890123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBookingStatus)

	confirmed, _, err := b.Confirm(now.Add(time.Second))
	require.NoError(t, err)

	ticketed, events, err := confirmed.IssueTicket("1234567890123")
	require.NoError(t, err)
	assert.Equal(t, BookingTicketed, ticketed.Status)
	require.Len(t, events, 1)
	assert.Equal(t, "TicketIssued", events[0].EventType())
}

func TestCreateBooking_RejectsMismatchedSegmentCurrency(t *testing.T) {
	now := time.Now()
	eur, _ := NewMoney(100, EUR)
	usd, _ := NewMoney(100, USD)

	passengers := []Passenger{{
		ID: NewPassengerId(), FirstName: "A", LastName: "B", Email: "a@b.com", Gender: Male, Type: Adult,
	}}
	segments := []BookingSegment{
		{ID: NewSegmentId(), FlightId: "AF1", Cabin: Economy, Price: eur},
		{ID: NewSegmentId(), FlightId: "AF2", Cabin: Economy, Price: usd},
	}
	pnr, _ := NewPnrCode("ZZ9999")

	_, _, err := CreateBooking(NewBookingId(), pnr, passengers, segments, now, 15*time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestIssueTicketFor_OneCouponPerSegment(t *testing.T) {
	now := time.Now()
	b := newTestBooking(t, now, 15*time.Minute)
	confirmed, _, err := b.Confirm(now.Add(time.Second))
	require.NoError(t, err)

	ticket, err := IssueTicketFor(confirmed, confirmed.Passengers[0], now)
	require.NoError(t, err)
	assert.Len(t, ticket.TicketNumber, 13)
	assert.Len(t, ticket.Coupons, len(confirmed.Segments))
	assert.Equal(t, CouponOpen, ticket.Coupons[0].Status)
}
