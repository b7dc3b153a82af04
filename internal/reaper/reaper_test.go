package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/repository"
	"github.com/bakate/avionics/internal/service"
)

type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Do(ctx context.Context, action func(ctx context.Context) error) error {
	return action(ctx)
}

var _ repository.UnitOfWorker = fakeUnitOfWork{}

type fakeInventoryRepo struct {
	mu    sync.Mutex
	items map[domain.FlightId]*domain.FlightInventory
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{items: map[domain.FlightId]*domain.FlightInventory{}}
}

func (r *fakeInventoryRepo) seed(inv *domain.FlightInventory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[inv.FlightId] = inv
}

func (r *fakeInventoryRepo) FindById(ctx context.Context, id domain.FlightId) (*domain.FlightInventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.items[id]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	return inv, nil
}

func (r *fakeInventoryRepo) Save(ctx context.Context, inv *domain.FlightInventory, events []domain.Event) (*domain.FlightInventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[inv.FlightId] = inv
	return inv, nil
}

var _ repository.InventoryRepository = (*fakeInventoryRepo)(nil)

type fakeBookingRepo struct {
	mu   sync.Mutex
	byID map[domain.BookingId]*domain.Booking
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{byID: map[domain.BookingId]*domain.Booking{}}
}

func (r *fakeBookingRepo) Insert(ctx context.Context, b *domain.Booking, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[b.ID] = b
	return nil
}

func (r *fakeBookingRepo) Save(ctx context.Context, b *domain.Booking, events []domain.Event) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[b.ID] = b
	return b, nil
}

func (r *fakeBookingRepo) FindById(ctx context.Context, id domain.BookingId) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return b, nil
}

func (r *fakeBookingRepo) FindByPnr(ctx context.Context, pnr domain.PnrCode) (*domain.Booking, error) {
	return nil, domain.ErrBookingNotFound
}

func (r *fakeBookingRepo) FindExpired(ctx context.Context, before time.Time, limit int) ([]*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Booking
	for _, b := range r.byID {
		if b.Status == domain.BookingHeld && b.ExpiresAt != nil && b.ExpiresAt.Before(before) {
			out = append(out, b)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) FindByPassenger(ctx context.Context, passengerID domain.PassengerId) ([]*domain.Booking, error) {
	return nil, nil
}

var _ repository.BookingRepository = (*fakeBookingRepo)(nil)

func seedBooking(t *testing.T, repo *fakeBookingRepo, flightID domain.FlightId, expiresAt time.Time) *domain.Booking {
	t.Helper()
	price, err := domain.NewMoney(10000, domain.EUR)
	require.NoError(t, err)
	passengers := []domain.Passenger{{
		ID: domain.NewPassengerId(), FirstName: "A", LastName: "B", Email: "a@b.com",
		Gender: domain.Male, Type: domain.Adult,
	}}
	segments := []domain.BookingSegment{{ID: domain.NewSegmentId(), FlightId: flightID, Cabin: domain.Economy, Price: price}}
	pnr, err := domain.NewPnrCode("EX9981")
	require.NoError(t, err)

	b, _, err := domain.CreateBooking(domain.NewBookingId(), pnr, passengers, segments, time.Now().Add(-time.Hour), time.Minute)
	require.NoError(t, err)
	b.ExpiresAt = &expiresAt
	repo.byID[b.ID] = b
	return b
}

func TestReaper_ExpiresHeldBookingsPastDeadlineAndReleasesSeats(t *testing.T) {
	invRepo := newFakeInventoryRepo()
	price, _ := domain.NewMoney(10000, domain.EUR)
	inv, err := domain.NewFlightInventory("AF1", map[domain.CabinClass]domain.SeatBucket{
		domain.Economy: {Available: 4, Capacity: 10, Price: price},
	}, 0)
	require.NoError(t, err)
	invRepo.seed(inv)

	bookings := newFakeBookingRepo()
	past := seedBooking(t, bookings, "AF1", time.Now().Add(-time.Minute))

	uow := fakeUnitOfWork{}
	inventorySvc := service.NewInventoryService(uow, invRepo)
	r := New(uow, bookings, inventorySvc, Config{ScanInterval: time.Hour, BatchSize: 10})

	r.scan(context.Background())

	reloaded, err := bookings.FindById(context.Background(), past.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingExpiredStatus, reloaded.Status)
	assert.Nil(t, reloaded.ExpiresAt)

	updatedInv, err := invRepo.FindById(context.Background(), "AF1")
	require.NoError(t, err)
	assert.Equal(t, 5, updatedInv.Buckets[domain.Economy].Available)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.TotalExpired)
	assert.Equal(t, int64(1), stats.TotalReleased)
}

func TestReaper_IgnoresBookingsNotYetExpired(t *testing.T) {
	invRepo := newFakeInventoryRepo()
	bookings := newFakeBookingRepo()
	seedBooking(t, bookings, "AF2", time.Now().Add(time.Hour))

	uow := fakeUnitOfWork{}
	inventorySvc := service.NewInventoryService(uow, invRepo)
	r := New(uow, bookings, inventorySvc, Config{ScanInterval: time.Hour, BatchSize: 10})

	r.scan(context.Background())

	stats := r.Stats()
	assert.Equal(t, int64(0), stats.TotalExpired)
}

func TestReaper_StartStopIsClean(t *testing.T) {
	invRepo := newFakeInventoryRepo()
	bookings := newFakeBookingRepo()
	uow := fakeUnitOfWork{}
	inventorySvc := service.NewInventoryService(uow, invRepo)
	r := New(uow, bookings, inventorySvc, Config{ScanInterval: 10 * time.Millisecond, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	r.Stop()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop in time")
	}
}
