package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/gateway"
	"github.com/bakate/avionics/internal/repository"
	"github.com/bakate/avionics/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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
	return nil, nil
}

func (r *fakeBookingRepo) FindByPassenger(ctx context.Context, passengerID domain.PassengerId) ([]*domain.Booking, error) {
	return nil, nil
}

var _ repository.BookingRepository = (*fakeBookingRepo)(nil)

type fakePaymentGateway struct{}

func (fakePaymentGateway) CreateCheckout(ctx context.Context, bookingID domain.BookingId, amount domain.Money) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{ID: "cs_1", BookingID: bookingID, Amount: amount}, nil
}

func (fakePaymentGateway) GetCheckout(ctx context.Context, checkoutID string) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{ID: checkoutID}, nil
}

var _ gateway.PaymentGateway = fakePaymentGateway{}

func newTestBookingService(t *testing.T, bookings *fakeBookingRepo) *service.BookingService {
	t.Helper()
	uow := fakeUnitOfWork{}
	inventory := service.NewInventoryService(uow, newFakeInventoryRepo())
	return service.NewBookingService(uow, bookings, inventory, fakePaymentGateway{}, 15*time.Minute)
}

func seedHeldBooking(t *testing.T, repo *fakeBookingRepo) *domain.Booking {
	t.Helper()
	price, err := domain.NewMoney(10000, domain.EUR)
	require.NoError(t, err)
	passengers := []domain.Passenger{{
		ID: domain.NewPassengerId(), FirstName: "A", LastName: "B", Email: "a@b.com",
		Gender: domain.Male, Type: domain.Adult,
	}}
	segments := []domain.BookingSegment{{ID: domain.NewSegmentId(), FlightId: "AF1", Cabin: domain.Economy, Price: price}}
	pnr, err := domain.NewPnrCode("WH1234")
	require.NoError(t, err)

	b, events, err := domain.CreateBooking(domain.NewBookingId(), pnr, passengers, segments, time.Now(), 15*time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), b, events))
	return b
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

func doWebhookRequest(t *testing.T, h *WebhookHandler, body []byte, sigHeader string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/webhooks/polar", bytes.NewReader(body))
	if sigHeader != "" {
		c.Request.Header.Set(signatureHeader, sigHeader)
	}
	h.Handle(c)
	return w
}

func TestWebhookHandler_ValidSignatureConfirmsBooking(t *testing.T) {
	const secret = "test-secret"
	bookings := newFakeBookingRepo()
	b := seedHeldBooking(t, bookings)
	svc := newTestBookingService(t, bookings)
	h := NewWebhookHandler(svc, secret)

	payload := map[string]any{
		"type": "checkout.updated",
		"data": map[string]any{
			"status":   "succeeded",
			"metadata": map[string]string{"bookingId": string(b.ID)},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := doWebhookRequest(t, h, body, sign(body, secret))
	assert.Equal(t, http.StatusOK, w.Code)

	reloaded, err := bookings.FindById(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingTicketed, reloaded.Status)
}

// TestWebhookHandler_TamperedSignatureRejected is spec §8 property 11 /
// scenario S6: a wrong-hex signature must be rejected with 401 and leave
// booking state untouched.
func TestWebhookHandler_TamperedSignatureRejected(t *testing.T) {
	const secret = "test-secret"
	bookings := newFakeBookingRepo()
	b := seedHeldBooking(t, bookings)
	svc := newTestBookingService(t, bookings)
	h := NewWebhookHandler(svc, secret)

	payload := map[string]any{
		"type": "checkout.updated",
		"data": map[string]any{
			"status":   "succeeded",
			"metadata": map[string]string{"bookingId": string(b.ID)},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := doWebhookRequest(t, h, body, "v1=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	reloaded, err := bookings.FindById(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingHeld, reloaded.Status, "booking state must be unchanged on rejected webhook")
}

func TestWebhookHandler_MissingSignatureRejected(t *testing.T) {
	h := NewWebhookHandler(newTestBookingService(t, newFakeBookingRepo()), "secret")
	body := []byte(`{"type":"checkout.updated","data":{"status":"succeeded","metadata":{}}}`)

	w := doWebhookRequest(t, h, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookHandler_UnknownEventTypeIsAcknowledged(t *testing.T) {
	const secret = "test-secret"
	h := NewWebhookHandler(newTestBookingService(t, newFakeBookingRepo()), secret)
	body := []byte(`{"type":"some.other.event","data":{"status":"succeeded","metadata":{}}}`)

	w := doWebhookRequest(t, h, body, sign(body, secret))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookHandler_BusinessErrorIsAcknowledgedNotRetried(t *testing.T) {
	const secret = "test-secret"
	bookings := newFakeBookingRepo()
	svc := newTestBookingService(t, bookings)
	h := NewWebhookHandler(svc, secret)

	// No booking with this id exists: ConfirmBooking fails with
	// BookingNotFound, a business error per spec §5, so the handler must
	// still acknowledge with 200 rather than asking the provider to retry.
	payload := map[string]any{
		"type": "checkout.updated",
		"data": map[string]any{
			"status":   "succeeded",
			"metadata": map[string]string{"bookingId": "does-not-exist"},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := doWebhookRequest(t, h, body, sign(body, secret))
	assert.Equal(t, http.StatusOK, w.Code)
}
