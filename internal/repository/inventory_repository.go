package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bakate/avionics/internal/domain"
)

// InventoryRepository loads and CAS-saves FlightInventory aggregates,
// writing their domain events to the outbox in the same transaction, per
// spec §4.D. Adapted from the teacher's transactional_booking_repository.go
// shape, generalized from a status-string guard to a version CAS.
type InventoryRepository interface {
	FindById(ctx context.Context, id domain.FlightId) (*domain.FlightInventory, error)
	Save(ctx context.Context, inv *domain.FlightInventory, events []domain.Event) (*domain.FlightInventory, error)
}

type PostgresInventoryRepository struct {
	pool   *pgxpool.Pool
	outbox OutboxRepository
}

func NewPostgresInventoryRepository(pool *pgxpool.Pool, outbox OutboxRepository) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{pool: pool, outbox: outbox}
}

var cabinColumns = map[domain.CabinClass]string{
	domain.Economy:  "economy",
	domain.Business: "business",
	domain.First:    "first",
}

func (r *PostgresInventoryRepository) FindById(ctx context.Context, id domain.FlightId) (*domain.FlightInventory, error) {
	const query = `
		SELECT flight_id,
		       economy_available, economy_total, economy_price_amount, economy_price_currency,
		       business_available, business_total, business_price_amount, business_price_currency,
		       first_available, first_total, first_price_amount, first_price_currency,
		       version
		FROM flight_inventory WHERE flight_id = $1
	`
	row := q(ctx, r.pool).QueryRow(ctx, query, string(id))

	var (
		flightID                                    string
		econAvail, econTotal                        int
		econAmount                                  int64
		econCurrency                                string
		bizAvail, bizTotal                          int
		bizAmount                                   int64
		bizCurrency                                 string
		firstAvail, firstTotal                      int
		firstAmount                                 int64
		firstCurrency                               string
		version                                      int
	)
	err := row.Scan(
		&flightID,
		&econAvail, &econTotal, &econAmount, &econCurrency,
		&bizAvail, &bizTotal, &bizAmount, &bizCurrency,
		&firstAvail, &firstTotal, &firstAmount, &firstCurrency,
		&version,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrFlightNotFound
		}
		return nil, &domain.InventoryPersistenceError{Field: "flight_inventory", Cause: err}
	}

	buckets := map[domain.CabinClass]domain.SeatBucket{
		domain.Economy:  {Available: econAvail, Capacity: econTotal, Price: domain.Money{Amount: econAmount, Currency: domain.Currency(econCurrency)}},
		domain.Business: {Available: bizAvail, Capacity: bizTotal, Price: domain.Money{Amount: bizAmount, Currency: domain.Currency(bizCurrency)}},
		domain.First:    {Available: firstAvail, Capacity: firstTotal, Price: domain.Money{Amount: firstAmount, Currency: domain.Currency(firstCurrency)}},
	}

	inv, err := domain.NewFlightInventory(domain.FlightId(flightID), buckets, version)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Save implements the CAS save protocol of spec §4.D: update guarded by
// (flight_id, version), fail with OptimisticLocking if the row moved,
// else write events to the outbox in the same transaction.
func (r *PostgresInventoryRepository) Save(ctx context.Context, inv *domain.FlightInventory, events []domain.Event) (*domain.FlightInventory, error) {
	econ := inv.Buckets[domain.Economy]
	biz := inv.Buckets[domain.Business]
	first := inv.Buckets[domain.First]

	const query = `
		UPDATE flight_inventory SET
			economy_available = $2, business_available = $3, first_available = $4,
			version = version + 1
		WHERE flight_id = $1 AND version = $5
	`
	tag, err := q(ctx, r.pool).Exec(ctx, query, string(inv.FlightId), econ.Available, biz.Available, first.Available, inv.Version-1)
	if err != nil {
		return nil, &domain.InventoryPersistenceError{Field: "flight_inventory", Cause: err}
	}
	if tag.RowsAffected() == 0 {
		actual, lookupErr := r.currentVersion(ctx, inv.FlightId)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, &domain.OptimisticLockingError{
			EntityType: "FlightInventory", ID: string(inv.FlightId),
			ExpectedVersion: inv.Version - 1, ActualVersion: actual,
		}
	}

	for _, evt := range events {
		msg, err := domain.NewOutboxMessage(uuid.New().String(), evt)
		if err != nil {
			return nil, err
		}
		if err := r.outbox.Insert(ctx, msg); err != nil {
			return nil, err
		}
	}

	return inv, nil
}

func (r *PostgresInventoryRepository) currentVersion(ctx context.Context, id domain.FlightId) (int, error) {
	var v int
	err := q(ctx, r.pool).QueryRow(ctx, `SELECT version FROM flight_inventory WHERE flight_id = $1`, string(id)).Scan(&v)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrFlightNotFound
		}
		return 0, fmt.Errorf("lookup current inventory version: %w", err)
	}
	return v, nil
}

var _ InventoryRepository = (*PostgresInventoryRepository)(nil)
