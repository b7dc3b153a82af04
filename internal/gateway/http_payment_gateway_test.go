package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakate/avionics/internal/domain"
)

func TestHTTPPaymentGateway_CreateCheckout_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkouts", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(checkoutResponse{ID: "chk_1", CheckoutURL: "https://pay.example/chk_1", Status: "pending"})
	}))
	defer srv.Close()

	g := NewHTTPPaymentGateway(srv.URL, "test-key")
	amount, err := domain.NewMoney(1000, domain.EUR)
	require.NoError(t, err)

	session, err := g.CreateCheckout(context.Background(), domain.BookingId("bk_1"), amount)
	require.NoError(t, err)
	assert.Equal(t, "chk_1", session.ID)
	assert.Equal(t, "pending", session.Status)
}

func TestHTTPPaymentGateway_CreateCheckout_Declined(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	g := NewHTTPPaymentGateway(srv.URL, "")
	amount, _ := domain.NewMoney(500, domain.USD)

	_, err := g.CreateCheckout(context.Background(), domain.BookingId("bk_2"), amount)
	require.Error(t, err)
	var declined *domain.PaymentDeclinedError
	assert.ErrorAs(t, err, &declined)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "a business decline must not be retried")
}

func TestHTTPPaymentGateway_CreateCheckout_UnsupportedCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	g := NewHTTPPaymentGateway(srv.URL, "")
	amount, _ := domain.NewMoney(500, domain.CHF)

	_, err := g.CreateCheckout(context.Background(), domain.BookingId("bk_3"), amount)
	var unsupported *domain.UnsupportedCurrencyError
	assert.ErrorAs(t, err, &unsupported)
}

func TestHTTPPaymentGateway_CreateCheckout_RetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(checkoutResponse{ID: "chk_retry", Status: "pending"})
	}))
	defer srv.Close()

	g := NewHTTPPaymentGateway(srv.URL, "")
	amount, _ := domain.NewMoney(750, domain.EUR)

	session, err := g.CreateCheckout(context.Background(), domain.BookingId("bk_4"), amount)
	require.NoError(t, err)
	assert.Equal(t, "chk_retry", session.ID)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPPaymentGateway_CreateCheckout_ExhaustsRetriesOnPersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewHTTPPaymentGateway(srv.URL, "")
	amount, _ := domain.NewMoney(750, domain.EUR)

	_, err := g.CreateCheckout(context.Background(), domain.BookingId("bk_5"), amount)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPaymentApiUnavailable)
}

func TestHTTPPaymentGateway_GetCheckout_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewHTTPPaymentGateway(srv.URL, "")
	_, err := g.GetCheckout(context.Background(), "chk_missing")
	assert.ErrorIs(t, err, domain.ErrCheckoutNotFound)
}
