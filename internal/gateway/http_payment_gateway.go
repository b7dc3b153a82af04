package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/pkg/retry"
)

// HTTPPaymentGateway calls an external payment provider's HTTP API,
// adapted from the teacher's HTTPZoneFetcher (zone_syncer.go): a thin
// client with a base URL and a plain *http.Client, one method per call,
// decode-and-check-status rather than a generated SDK. The concrete
// provider behind baseURL is out of this bounded context's scope (spec
// §1, §4.K) — this type only speaks the CreateCheckout/GetCheckout shape
// the saga needs.
//
// Transient failures (network errors, 5xx) are retried through
// pkg/retry.Retrier; business outcomes (declined, unsupported currency,
// not found) are marked retry.Permanent so a single round-trip settles
// them instead of burning retries on an outcome that won't change.
type HTTPPaymentGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retrier    *retry.Retrier
}

func NewHTTPPaymentGateway(baseURL, apiKey string) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retrier: retry.New(&retry.Config{
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.2,
		}),
	}
}

type createCheckoutRequest struct {
	BookingID  string `json:"bookingId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl,omitempty"`
}

type checkoutResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expiresAt"`
}

// CreateCheckout opens a checkout session for amount against bookingID.
// The provider contract requires this call be idempotent on bookingID
// (spec §4.K): retrying with the same bookingID returns the existing
// session rather than opening a second one, which is the provider's
// responsibility, not this client's.
func (g *HTTPPaymentGateway) CreateCheckout(ctx context.Context, bookingID domain.BookingId, amount domain.Money) (*CheckoutSession, error) {
	body, err := json.Marshal(createCheckoutRequest{
		BookingID: string(bookingID),
		Amount:    amount.Amount,
		Currency:  string(amount.Currency),
	})
	if err != nil {
		return nil, fmt.Errorf("encode checkout request: %w", err)
	}

	var out checkoutResponse
	result := g.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/checkouts", bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build checkout request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPaymentApiUnavailable, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return retry.Permanent(fmt.Errorf("%w: decode checkout response: %v", domain.ErrPaymentApiUnavailable, err))
			}
			return nil
		case http.StatusUnprocessableEntity, http.StatusBadRequest:
			return retry.Permanent(&domain.UnsupportedCurrencyError{Currency: string(amount.Currency)})
		case http.StatusPaymentRequired:
			return retry.Permanent(&domain.PaymentDeclinedError{Reason: "declined by provider"})
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: unexpected status %d", domain.ErrPaymentApiUnavailable, resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("%w: unexpected status %d", domain.ErrPaymentApiUnavailable, resp.StatusCode))
		}
	})
	if result.Err != nil {
		if result.LastError != nil {
			return nil, result.LastError
		}
		return nil, result.Err
	}

	return &CheckoutSession{
		ID:          out.ID,
		BookingID:   bookingID,
		Amount:      amount,
		Status:      out.Status,
		RedirectURL: out.CheckoutURL,
	}, nil
}

// GetCheckout fetches the current state of a previously created checkout.
func (g *HTTPPaymentGateway) GetCheckout(ctx context.Context, checkoutID string) (*CheckoutSession, error) {
	var out checkoutResponse
	result := g.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/checkouts/"+checkoutID, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("build checkout lookup: %w", err))
		}
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPaymentApiUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return retry.Permanent(domain.ErrCheckoutNotFound)
		}
		if resp.StatusCode == http.StatusInternalServerError || resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout {
			return fmt.Errorf("%w: unexpected status %d", domain.ErrPaymentApiUnavailable, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("%w: unexpected status %d", domain.ErrPaymentApiUnavailable, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return retry.Permanent(fmt.Errorf("%w: decode checkout response: %v", domain.ErrPaymentApiUnavailable, err))
		}
		return nil
	})
	if result.Err != nil {
		if result.LastError != nil {
			return nil, result.LastError
		}
		return nil, result.Err
	}

	return &CheckoutSession{ID: out.ID, Status: out.Status, RedirectURL: out.CheckoutURL}, nil
}

var _ PaymentGateway = (*HTTPPaymentGateway)(nil)
