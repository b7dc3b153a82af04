package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/dto"
	"github.com/bakate/avionics/internal/service"
	"github.com/bakate/avionics/pkg/logger"
	"github.com/bakate/avionics/pkg/response"
)

const signatureHeader = "webhook-signature"

// WebhookHandler verifies and dispatches payment-provider callbacks, per
// spec §6 (`POST /webhooks/polar`) and §5's webhook error-classification
// rule. Grounded on the teacher's Stripe webhook handler's read-body →
// verify-signature → dispatch-by-type shape, with the signature check
// replaced by a custom constant-time HMAC compare since this provider is
// not Stripe (spec §9 calls out `checkout.updated`/`checkout.succeeded` as
// the canonical/legacy pair of event names).
type WebhookHandler struct {
	bookings *service.BookingService
	secret   string
	log      *zap.SugaredLogger
}

func NewWebhookHandler(bookings *service.BookingService, secret string) *WebhookHandler {
	return &WebhookHandler{bookings: bookings, secret: secret, log: logger.Get()}
}

// Handle handles POST /webhooks/polar.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, 400, "MALFORMED_PAYLOAD", "failed to read request body", "")
		return
	}

	if !h.verifySignature(body, c.GetHeader(signatureHeader)) {
		h.log.Warnw("webhook signature verification failed")
		response.Error(c, 401, "WEBHOOK_AUTHENTICATION", "invalid or missing signature", "")
		return
	}

	var payload dto.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(c, 400, "MALFORMED_PAYLOAD", "invalid JSON body", "")
		return
	}

	// checkout.succeeded is a legacy alias for checkout.updated with
	// status=succeeded (spec §9); unknown types are acknowledged and
	// ignored rather than rejected, so an upstream provider adding new
	// event types never breaks this integration.
	switch payload.Type {
	case "checkout.updated", "checkout.succeeded":
		if payload.Data.Status != "succeeded" {
			c.JSON(200, gin.H{"received": true})
			return
		}
		h.handleCheckoutSucceeded(c, payload)
	default:
		h.log.Infow("ignoring unhandled webhook event type", "type", payload.Type)
		c.JSON(200, gin.H{"received": true})
	}
}

func (h *WebhookHandler) handleCheckoutSucceeded(c *gin.Context, payload dto.WebhookPayload) {
	bookingID := payload.Data.Metadata["bookingId"]
	if bookingID == "" {
		response.Error(c, 400, "MALFORMED_PAYLOAD", "metadata.bookingId is required", "")
		return
	}

	_, err := h.bookings.ConfirmBooking(c.Request.Context(), domain.BookingId(bookingID))
	if err != nil {
		switch {
		case domain.IsTransientError(err):
			h.log.Errorw("webhook processing failed transiently, caller should retry", "bookingId", bookingID, "error", err)
			response.Error(c, 503, "TRANSIENT", "temporarily unable to process event", "")
		case domain.IsBusinessError(err):
			// Already terminal, already ticketed, or expired: nothing more
			// to do. Acknowledge so the provider doesn't retry forever.
			h.log.Infow("webhook acknowledged despite business error", "bookingId", bookingID, "error", err)
			c.JSON(200, gin.H{"received": true})
		default:
			h.log.Errorw("webhook processing failed unexpectedly", "bookingId", bookingID, "error", err)
			response.Error(c, 503, "TRANSIENT", "temporarily unable to process event", "")
		}
		return
	}

	c.JSON(200, gin.H{"received": true})
}

// verifySignature checks header "v1=<hex>" against HMAC-SHA256(body, secret)
// using a constant-time comparison, per spec §6 ("mandatory").
func (h *WebhookHandler) verifySignature(body []byte, header string) bool {
	const prefix = "v1="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	want := mac.Sum(nil)

	return subtle.ConstantTimeCompare(got, want) == 1
}
