package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/gateway"
	"github.com/bakate/avionics/internal/repository"
)

// fakeUnitOfWork runs the action inline with no real transaction, good
// enough for exercising services whose correctness doesn't depend on
// isolation semantics.
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
	current, ok := r.items[inv.FlightId]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	if current.Version != inv.Version-1 {
		return nil, &domain.OptimisticLockingError{EntityType: "FlightInventory", ID: string(inv.FlightId)}
	}
	r.items[inv.FlightId] = inv
	return inv, nil
}

var _ repository.InventoryRepository = (*fakeInventoryRepo)(nil)

type fakeBookingRepo struct {
	mu    sync.Mutex
	byID  map[domain.BookingId]*domain.Booking
	byPnr map[domain.PnrCode]*domain.Booking
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{byID: map[domain.BookingId]*domain.Booking{}, byPnr: map[domain.PnrCode]*domain.Booking{}}
}

func (r *fakeBookingRepo) Insert(ctx context.Context, b *domain.Booking, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[b.ID] = b
	r.byPnr[b.PnrCode] = b
	return nil
}

func (r *fakeBookingRepo) Save(ctx context.Context, b *domain.Booking, events []domain.Event) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[b.ID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if current.Version != b.Version-1 {
		return nil, &domain.OptimisticLockingError{EntityType: "Booking", ID: string(b.ID)}
	}
	r.byID[b.ID] = b
	r.byPnr[b.PnrCode] = b
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
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byPnr[pnr]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return b, nil
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
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Booking
	for _, b := range r.byID {
		for _, p := range b.Passengers {
			if p.ID == passengerID {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

var _ repository.BookingRepository = (*fakeBookingRepo)(nil)

type fakePaymentGateway struct {
	checkoutErr error
}

func (g *fakePaymentGateway) CreateCheckout(ctx context.Context, bookingID domain.BookingId, amount domain.Money) (*gateway.CheckoutSession, error) {
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	return &gateway.CheckoutSession{ID: "cs_1", BookingID: bookingID, Amount: amount, Status: "pending"}, nil
}

func (g *fakePaymentGateway) GetCheckout(ctx context.Context, checkoutID string) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{ID: checkoutID, Status: "pending"}, nil
}

var _ gateway.PaymentGateway = (*fakePaymentGateway)(nil)

func seedFlight(t *testing.T, repo *fakeInventoryRepo, id domain.FlightId, available, capacity int) {
	t.Helper()
	price, err := domain.NewMoney(15000, domain.EUR)
	require.NoError(t, err)
	inv, err := domain.NewFlightInventory(id, map[domain.CabinClass]domain.SeatBucket{
		domain.Economy: {Available: available, Capacity: capacity, Price: price},
	}, 0)
	require.NoError(t, err)
	repo.seed(inv)
}

func testPassengers() []domain.Passenger {
	return []domain.Passenger{{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.com",
		Gender:    domain.Female,
		Type:      domain.Adult,
	}}
}

func TestBookingService_BookFlight_HappyPath(t *testing.T) {
	invRepo := newFakeInventoryRepo()
	seedFlight(t, invRepo, "AF100", 10, 10)

	uow := fakeUnitOfWork{}
	inventory := NewInventoryService(uow, invRepo)
	bookings := newFakeBookingRepo()
	payments := &fakePaymentGateway{}

	svc := NewBookingService(uow, bookings, inventory, payments, 15*time.Minute)

	result, err := svc.BookFlight(context.Background(), BookFlightCommand{
		Passengers: testPassengers(),
		Segments:   []SegmentRequest{{FlightId: "AF100", Cabin: domain.Economy}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingHeld, result.Booking.Status)
	assert.Equal(t, "cs_1", result.Checkout.ID)

	inv, err := invRepo.FindById(context.Background(), "AF100")
	require.NoError(t, err)
	assert.Equal(t, 9, inv.Buckets[domain.Economy].Available)
}

// TestBookingService_BookFlight_CompensatesOnCheckoutFailure is spec §8
// property 8: when checkout fails after a hold succeeded, the booking
// ends up Cancelled and the held seat is released back to inventory.
func TestBookingService_BookFlight_CompensatesOnCheckoutFailure(t *testing.T) {
	invRepo := newFakeInventoryRepo()
	seedFlight(t, invRepo, "AF200", 10, 10)

	uow := fakeUnitOfWork{}
	inventory := NewInventoryService(uow, invRepo)
	bookings := newFakeBookingRepo()
	payments := &fakePaymentGateway{checkoutErr: &domain.PaymentDeclinedError{Reason: "insufficient funds"}}

	svc := NewBookingService(uow, bookings, inventory, payments, 15*time.Minute)

	_, err := svc.BookFlight(context.Background(), BookFlightCommand{
		Passengers: testPassengers(),
		Segments:   []SegmentRequest{{FlightId: "AF200", Cabin: domain.Economy}},
	})
	require.Error(t, err)
	var declined *domain.PaymentDeclinedError
	require.ErrorAs(t, err, &declined, "the saga must re-raise the original unmasked error")

	inv, err := invRepo.FindById(context.Background(), "AF200")
	require.NoError(t, err)
	assert.Equal(t, 10, inv.Buckets[domain.Economy].Available, "held seat must be released on compensation")

	var found *domain.Booking
	for _, b := range bookings.byID {
		found = b
	}
	require.NotNil(t, found)
	assert.Equal(t, domain.BookingCancelledStatus, found.Status)
}

func TestBookingService_BookFlight_SecondSegmentFullReleasesFirstHold(t *testing.T) {
	invRepo := newFakeInventoryRepo()
	seedFlight(t, invRepo, "AF300", 1, 1)
	seedFlight(t, invRepo, "AF301", 0, 1)

	uow := fakeUnitOfWork{}
	inventory := NewInventoryService(uow, invRepo)
	bookings := newFakeBookingRepo()
	payments := &fakePaymentGateway{}

	svc := NewBookingService(uow, bookings, inventory, payments, 15*time.Minute)

	_, err := svc.BookFlight(context.Background(), BookFlightCommand{
		Passengers: testPassengers(),
		Segments: []SegmentRequest{
			{FlightId: "AF300", Cabin: domain.Economy},
			{FlightId: "AF301", Cabin: domain.Economy},
		},
	})
	require.Error(t, err)
	var full *domain.FlightFullError
	require.ErrorAs(t, err, &full)

	inv, err := invRepo.FindById(context.Background(), "AF300")
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Buckets[domain.Economy].Available, "first segment's hold must be released")
}

func TestBookingService_ConfirmBooking_IsIdempotentOnceTicketed(t *testing.T) {
	uow := fakeUnitOfWork{}
	invRepo := newFakeInventoryRepo()
	inventory := NewInventoryService(uow, invRepo)
	bookings := newFakeBookingRepo()
	payments := &fakePaymentGateway{}
	svc := NewBookingService(uow, bookings, inventory, payments, 15*time.Minute)

	price, _ := domain.NewMoney(10000, domain.EUR)
	now := time.Now()
	b, events, err := domain.CreateBooking(domain.NewBookingId(), mustPnr(t, "AB12CD"), testPassengers(), []domain.BookingSegment{
		{ID: domain.NewSegmentId(), FlightId: "AF1", Cabin: domain.Economy, Price: price},
	}, now, 15*time.Minute)
	require.NoError(t, err)
	require.NoError(t, bookings.Insert(context.Background(), b, events))

	confirmed, err := svc.ConfirmBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingTicketed, confirmed.Status)

	again, err := svc.ConfirmBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingTicketed, again.Status)
}

func mustPnr(t *testing.T, s string) domain.PnrCode {
	t.Helper()
	pnr, err := domain.NewPnrCode(s)
	require.NoError(t, err)
	return pnr
}

func TestBookingService_CancelBooking_ReleasesAllSegments(t *testing.T) {
	uow := fakeUnitOfWork{}
	invRepo := newFakeInventoryRepo()
	seedFlight(t, invRepo, "AF9", 5, 10)
	inventory := NewInventoryService(uow, invRepo)
	bookings := newFakeBookingRepo()
	payments := &fakePaymentGateway{}
	svc := NewBookingService(uow, bookings, inventory, payments, 15*time.Minute)

	price, _ := domain.NewMoney(10000, domain.EUR)
	now := time.Now()
	b, events, err := domain.CreateBooking(domain.NewBookingId(), mustPnr(t, "ZZ8899"), testPassengers(), []domain.BookingSegment{
		{ID: domain.NewSegmentId(), FlightId: "AF9", Cabin: domain.Economy, Price: price},
	}, now, 15*time.Minute)
	require.NoError(t, err)
	require.NoError(t, bookings.Insert(context.Background(), b, events))

	cancelled, err := svc.CancelBooking(context.Background(), b.ID, "customer request")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelledStatus, cancelled.Status)

	inv, err := invRepo.FindById(context.Background(), "AF9")
	require.NoError(t, err)
	assert.Equal(t, 6, inv.Buckets[domain.Economy].Available)
}
