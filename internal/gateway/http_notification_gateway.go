package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/pkg/retry"
)

// HTTPNotificationGateway calls an external notification provider's HTTP
// API, in the same thin-client shape as HTTPPaymentGateway: one base URL,
// one *http.Client, decode-and-check-status. The concrete provider is out
// of this bounded context's scope (spec §1, §4.K). Transient failures
// (network errors, 5xx) go through pkg/retry.Retrier the same way the
// payment gateway uses it; a 429 is the provider's own rate-limit signal
// and is surfaced as NotificationRateLimitError rather than retried here.
type HTTPNotificationGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retrier    *retry.Retrier
}

func NewHTTPNotificationGateway(baseURL, apiKey string) *HTTPNotificationGateway {
	return &HTTPNotificationGateway{
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

type sendNotificationRequest struct {
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Data      map[string]string `json:"data"`
}

type sendNotificationResponse struct {
	MessageID string `json:"messageId"`
}

// Send dispatches n to the provider. retryAfterSeconds on a 429 is parsed
// as integer-seconds, falling back to HTTP-date per RFC 7231 and
// defaulting to 60s if absent or unparseable, per spec §4.K.
func (g *HTTPNotificationGateway) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(sendNotificationRequest{Recipient: n.Recipient, Template: n.Template, Data: n.Data})
	if err != nil {
		return fmt.Errorf("encode notification request: %w", err)
	}

	result := g.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/notifications", bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build notification request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrNotificationApiUnavailable, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK, http.StatusAccepted, http.StatusCreated:
			var out sendNotificationResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return retry.Permanent(fmt.Errorf("%w: decode response: %v", domain.ErrNotificationApiUnavailable, err))
			}
			return nil
		case http.StatusUnauthorized, http.StatusForbidden:
			return retry.Permanent(domain.ErrNotificationAuthentication)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return retry.Permanent(domain.ErrInvalidRecipient)
		case http.StatusTooManyRequests:
			return retry.Permanent(&domain.NotificationRateLimitError{RetryAfterSeconds: parseRetryAfter(resp.Header.Get("Retry-After"))})
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: unexpected status %d", domain.ErrNotificationApiUnavailable, resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("%w: unexpected status %d", domain.ErrNotificationApiUnavailable, resp.StatusCode))
		}
	})
	if result.Err != nil {
		if result.LastError != nil {
			return result.LastError
		}
		return result.Err
	}
	return nil
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 60
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return secs
	}
	if when, err := http.ParseTime(header); err == nil {
		d := int(time.Until(when).Seconds())
		if d < 0 {
			d = 0
		}
		return d
	}
	return 60
}

var _ NotificationGateway = (*HTTPNotificationGateway)(nil)
