// Package query implements the read-only side of the API: projections
// over the bookings/passengers/segments tables that return DTOs directly,
// without reconstructing (and re-validating) the Booking aggregate, per
// spec §4.J.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingSummary is the read model returned by every booking-lookup route.
type BookingSummary struct {
	ID         string               `json:"id"`
	PnrCode    string               `json:"pnrCode"`
	Status     string               `json:"status"`
	ExpiresAt  *time.Time           `json:"expiresAt,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
	Passengers []PassengerSummary   `json:"passengers"`
	Segments   []SegmentSummary     `json:"segments"`
}

type PassengerSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type SegmentSummary struct {
	ID            string `json:"id"`
	FlightId      string `json:"flightId"`
	Cabin         string `json:"cabin"`
	PriceAmount   int64  `json:"priceAmount"`
	PriceCurrency string `json:"priceCurrency"`
	SeatNumber    *string `json:"seatNumber,omitempty"`
}

// PassengerBookingHistory is one passenger's line item in the per-passenger
// itinerary listing (GET /bookings/passenger/:id).
type PassengerBookingHistory struct {
	BookingID string    `json:"bookingId"`
	PnrCode   string    `json:"pnrCode"`
	Status    string    `json:"status"`
	FlightId  string    `json:"flightId"`
	Cabin     string    `json:"cabin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Queries is the read-only query facade, kept deliberately separate from
// the write-side BookingRepository: no CAS, no outbox, no aggregate
// reconstruction, just SQL projections.
type Queries struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const summaryBaseQuery = `
	SELECT b.id, b.pnr_code, b.status, b.expires_at, b.created_at
	FROM bookings b
`

// ListAll returns every booking, most recently created first, for GET /bookings.
func (q *Queries) ListAll(ctx context.Context, limit int) ([]BookingSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := q.pool.Query(ctx, summaryBaseQuery+` ORDER BY b.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	return q.scanSummaries(ctx, rows)
}

// FindByPnr returns a single booking by its PNR, for GET /bookings/pnr/:pnr.
func (q *Queries) FindByPnr(ctx context.Context, pnr string) (*BookingSummary, error) {
	rows, err := q.pool.Query(ctx, summaryBaseQuery+` WHERE b.pnr_code = $1`, pnr)
	if err != nil {
		return nil, fmt.Errorf("find booking by pnr: %w", err)
	}
	defer rows.Close()
	summaries, err := q.scanSummaries(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &summaries[0], nil
}

// FindById returns a single booking summary by id.
func (q *Queries) FindById(ctx context.Context, id string) (*BookingSummary, error) {
	rows, err := q.pool.Query(ctx, summaryBaseQuery+` WHERE b.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("find booking by id: %w", err)
	}
	defer rows.Close()
	summaries, err := q.scanSummaries(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &summaries[0], nil
}

// SearchByName returns bookings whose passenger list matches name
// case-insensitively, capped at limit≤100 per spec §6.
func (q *Queries) SearchByName(ctx context.Context, name string, limit int) ([]BookingSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := q.pool.Query(ctx, summaryBaseQuery+`
		JOIN passengers p ON p.booking_id = b.id
		WHERE p.first_name ILIKE '%' || $1 || '%' OR p.last_name ILIKE '%' || $1 || '%'
		ORDER BY b.created_at DESC LIMIT $2
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("search bookings by name: %w", err)
	}
	defer rows.Close()
	return q.scanSummaries(ctx, rows)
}

// PassengerHistory returns every segment a passenger has flown or is
// booked on, for GET /bookings/passenger/:id.
func (q *Queries) PassengerHistory(ctx context.Context, passengerID string) ([]PassengerBookingHistory, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT b.id, b.pnr_code, b.status, s.flight_id, s.cabin_class, b.created_at
		FROM bookings b
		JOIN passengers p ON p.booking_id = b.id
		JOIN segments s ON s.booking_id = b.id
		WHERE p.id = $1
		ORDER BY b.created_at DESC
	`, passengerID)
	if err != nil {
		return nil, fmt.Errorf("passenger history: %w", err)
	}
	defer rows.Close()

	var out []PassengerBookingHistory
	for rows.Next() {
		var h PassengerBookingHistory
		if err := rows.Scan(&h.BookingID, &h.PnrCode, &h.Status, &h.FlightId, &h.Cabin, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan passenger history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (q *Queries) scanSummaries(ctx context.Context, rows pgx.Rows) ([]BookingSummary, error) {
	var out []BookingSummary
	var ids []string
	byID := map[string]*BookingSummary{}

	for rows.Next() {
		var s BookingSummary
		if err := rows.Scan(&s.ID, &s.PnrCode, &s.Status, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking summary: %w", err)
		}
		out = append(out, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		byID[out[i].ID] = &out[i]
	}

	for _, id := range ids {
		passengers, err := q.loadPassengers(ctx, id)
		if err != nil {
			return nil, err
		}
		byID[id].Passengers = passengers

		segments, err := q.loadSegments(ctx, id)
		if err != nil {
			return nil, err
		}
		byID[id].Segments = segments
	}
	return out, nil
}

func (q *Queries) loadPassengers(ctx context.Context, bookingID string) ([]PassengerSummary, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, first_name, last_name, email FROM passengers WHERE booking_id = $1
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load passengers: %w", err)
	}
	defer rows.Close()

	var out []PassengerSummary
	for rows.Next() {
		var p PassengerSummary
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email); err != nil {
			return nil, fmt.Errorf("scan passenger: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) loadSegments(ctx context.Context, bookingID string) ([]SegmentSummary, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, flight_id, cabin_class, price_amount, price_currency, seat_number
		FROM segments WHERE booking_id = $1
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	defer rows.Close()

	var out []SegmentSummary
	for rows.Next() {
		var s SegmentSummary
		if err := rows.Scan(&s.ID, &s.FlightId, &s.Cabin, &s.PriceAmount, &s.PriceCurrency, &s.SeatNumber); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
