package gateway

import (
	"context"

	"github.com/bakate/avionics/internal/domain"
)

// CheckoutSession is the gateway's representation of a payment attempt
// started against a booking, per spec §4.K.
type CheckoutSession struct {
	ID        string
	BookingID domain.BookingId
	Amount    domain.Money
	Status    string
	RedirectURL string
}

// PaymentGateway is the shape of the external payment provider this
// system talks to. It is modeled as an interface only: the concrete
// provider lives outside this bounded context (spec §1, §4.K).
type PaymentGateway interface {
	// CreateCheckout starts a payment attempt for amount against bookingID.
	// Errors: PaymentApiUnavailable, UnsupportedCurrency, PaymentDeclined.
	CreateCheckout(ctx context.Context, bookingID domain.BookingId, amount domain.Money) (*CheckoutSession, error)

	// GetCheckout fetches the current state of a previously created
	// checkout. Errors: PaymentApiUnavailable, CheckoutNotFound.
	GetCheckout(ctx context.Context, checkoutID string) (*CheckoutSession, error)
}
