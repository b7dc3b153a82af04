package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bakate/avionics/internal/domain"
)

// BookingRepository loads and CAS-saves Booking aggregates (with their
// owned Passengers/Segments) and writes their domain events to the
// outbox in the same transaction, per spec §4.D.
type BookingRepository interface {
	Insert(ctx context.Context, b *domain.Booking, events []domain.Event) error
	Save(ctx context.Context, b *domain.Booking, events []domain.Event) (*domain.Booking, error)
	FindById(ctx context.Context, id domain.BookingId) (*domain.Booking, error)
	FindByPnr(ctx context.Context, pnr domain.PnrCode) (*domain.Booking, error)
	FindExpired(ctx context.Context, before time.Time, limit int) ([]*domain.Booking, error)
	FindByPassenger(ctx context.Context, passengerID domain.PassengerId) ([]*domain.Booking, error)
}

type PostgresBookingRepository struct {
	pool   *pgxpool.Pool
	outbox OutboxRepository
}

func NewPostgresBookingRepository(pool *pgxpool.Pool, outbox OutboxRepository) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool, outbox: outbox}
}

// Insert persists a brand-new Held booking (version 0) plus its
// passengers and segments, and writes its events to the outbox.
func (r *PostgresBookingRepository) Insert(ctx context.Context, b *domain.Booking, events []domain.Event) error {
	const bookingQuery = `
		INSERT INTO bookings (id, pnr_code, status, created_at, updated_at, expires_at, version)
		VALUES ($1, $2, $3, $4, $4, $5, $6)
	`
	_, err := q(ctx, r.pool).Exec(ctx, bookingQuery, string(b.ID), string(b.PnrCode), string(b.Status), b.CreatedAt, b.ExpiresAt, b.Version)
	if err != nil {
		return &domain.BookingPersistenceError{Field: "bookings", Cause: err}
	}

	for _, p := range b.Passengers {
		const pq = `
			INSERT INTO passengers (id, booking_id, first_name, last_name, email, date_of_birth, gender, type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := q(ctx, r.pool).Exec(ctx, pq, string(p.ID), string(b.ID), p.FirstName, p.LastName, p.Email, p.DateOfBirth, string(p.Gender), string(p.Type)); err != nil {
			return &domain.BookingPersistenceError{Field: "passengers", Cause: err}
		}
	}

	for _, seg := range b.Segments {
		const sq = `
			INSERT INTO segments (id, booking_id, flight_id, cabin_class, price_amount, price_currency, seat_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := q(ctx, r.pool).Exec(ctx, sq, string(seg.ID), string(b.ID), string(seg.FlightId), string(seg.Cabin), seg.Price.Amount, string(seg.Price.Currency), seg.SeatNumber); err != nil {
			return &domain.BookingPersistenceError{Field: "segments", Cause: err}
		}
	}

	return r.writeEvents(ctx, events)
}

// Save CAS-updates status/expires_at/version and writes events, per
// spec §4.D's save protocol.
func (r *PostgresBookingRepository) Save(ctx context.Context, b *domain.Booking, events []domain.Event) (*domain.Booking, error) {
	const query = `
		UPDATE bookings SET status = $2, expires_at = $3, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $5
	`
	tag, err := q(ctx, r.pool).Exec(ctx, query, string(b.ID), string(b.Status), b.ExpiresAt, time.Now(), b.Version-1)
	if err != nil {
		return nil, &domain.BookingPersistenceError{Field: "bookings", Cause: err}
	}
	if tag.RowsAffected() == 0 {
		var actual int
		lookupErr := q(ctx, r.pool).QueryRow(ctx, `SELECT version FROM bookings WHERE id = $1`, string(b.ID)).Scan(&actual)
		if lookupErr != nil {
			if lookupErr == pgx.ErrNoRows {
				return nil, domain.ErrBookingNotFound
			}
			return nil, fmt.Errorf("lookup current booking version: %w", lookupErr)
		}
		return nil, &domain.OptimisticLockingError{
			EntityType: "Booking", ID: string(b.ID),
			ExpectedVersion: b.Version - 1, ActualVersion: actual,
		}
	}

	if err := r.writeEvents(ctx, events); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PostgresBookingRepository) writeEvents(ctx context.Context, events []domain.Event) error {
	for _, evt := range events {
		msg, err := domain.NewOutboxMessage(uuid.New().String(), evt)
		if err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresBookingRepository) FindById(ctx context.Context, id domain.BookingId) (*domain.Booking, error) {
	return r.findOneWhere(ctx, "id = $1", string(id))
}

func (r *PostgresBookingRepository) FindByPnr(ctx context.Context, pnr domain.PnrCode) (*domain.Booking, error) {
	return r.findOneWhere(ctx, "pnr_code = $1", string(pnr))
}

func (r *PostgresBookingRepository) findOneWhere(ctx context.Context, predicate string, arg interface{}) (*domain.Booking, error) {
	query := fmt.Sprintf(`SELECT id, pnr_code, status, created_at, expires_at, version FROM bookings WHERE %s`, predicate)
	row := q(ctx, r.pool).QueryRow(ctx, query, arg)

	var (
		id, pnr, status string
		createdAt       time.Time
		expiresAt       *time.Time
		version         int
	)
	if err := row.Scan(&id, &pnr, &status, &createdAt, &expiresAt, &version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrBookingNotFound
		}
		return nil, &domain.BookingPersistenceError{Field: "bookings", Cause: err}
	}

	b := &domain.Booking{
		ID:        domain.BookingId(id),
		PnrCode:   domain.PnrCode(pnr),
		Status:    domain.BookingStatus(status),
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		Version:   version,
	}

	passengers, err := r.loadPassengers(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Passengers = passengers

	segments, err := r.loadSegments(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Segments = segments

	return b, nil
}

func (r *PostgresBookingRepository) loadPassengers(ctx context.Context, id domain.BookingId) ([]domain.Passenger, error) {
	rows, err := q(ctx, r.pool).Query(ctx, `
		SELECT id, first_name, last_name, email, date_of_birth, gender, type
		FROM passengers WHERE booking_id = $1
	`, string(id))
	if err != nil {
		return nil, &domain.BookingPersistenceError{Field: "passengers", Cause: err}
	}
	defer rows.Close()

	var out []domain.Passenger
	for rows.Next() {
		var p domain.Passenger
		var pid, gender, ptype string
		if err := rows.Scan(&pid, &p.FirstName, &p.LastName, &p.Email, &p.DateOfBirth, &gender, &ptype); err != nil {
			return nil, &domain.BookingPersistenceError{Field: "passengers", Cause: err}
		}
		p.ID = domain.PassengerId(pid)
		p.Gender = domain.Gender(gender)
		p.Type = domain.PassengerType(ptype)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresBookingRepository) loadSegments(ctx context.Context, id domain.BookingId) ([]domain.BookingSegment, error) {
	rows, err := q(ctx, r.pool).Query(ctx, `
		SELECT id, flight_id, cabin_class, price_amount, price_currency, seat_number
		FROM segments WHERE booking_id = $1
	`, string(id))
	if err != nil {
		return nil, &domain.BookingPersistenceError{Field: "segments", Cause: err}
	}
	defer rows.Close()

	var out []domain.BookingSegment
	for rows.Next() {
		var seg domain.BookingSegment
		var sid, flightID, cabin, currency string
		var amount int64
		if err := rows.Scan(&sid, &flightID, &cabin, &amount, &currency, &seg.SeatNumber); err != nil {
			return nil, &domain.BookingPersistenceError{Field: "segments", Cause: err}
		}
		seg.ID = domain.SegmentId(sid)
		seg.FlightId = domain.FlightId(flightID)
		seg.Cabin = domain.CabinClass(cabin)
		seg.Price = domain.Money{Amount: amount, Currency: domain.Currency(currency)}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// FindExpired returns Held bookings whose expires_at < before, for the
// reaper, per spec §4.I.
func (r *PostgresBookingRepository) FindExpired(ctx context.Context, before time.Time, limit int) ([]*domain.Booking, error) {
	rows, err := q(ctx, r.pool).Query(ctx, `
		SELECT id FROM bookings WHERE status = $1 AND expires_at < $2 ORDER BY expires_at ASC LIMIT $3
	`, string(domain.BookingHeld), before, limit)
	if err != nil {
		return nil, &domain.BookingPersistenceError{Field: "bookings", Cause: err}
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, &domain.BookingPersistenceError{Field: "bookings", Cause: err}
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := r.FindById(ctx, domain.BookingId(id))
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *PostgresBookingRepository) FindByPassenger(ctx context.Context, passengerID domain.PassengerId) ([]*domain.Booking, error) {
	rows, err := q(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT b.id FROM bookings b JOIN passengers p ON p.booking_id = b.id WHERE p.id = $1
	`, string(passengerID))
	if err != nil {
		return nil, &domain.BookingPersistenceError{Field: "bookings", Cause: err}
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, &domain.BookingPersistenceError{Field: "bookings", Cause: err}
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := r.FindById(ctx, domain.BookingId(id))
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

var _ BookingRepository = (*PostgresBookingRepository)(nil)
