package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/gateway"
	"github.com/bakate/avionics/internal/repository"
	"github.com/bakate/avionics/internal/service"
)

// bookingIDPayload decodes the bookingId common to BookingCancelled and
// BookingExpired events; both consumers only need that one field to look
// the booking back up.
type bookingIDPayload struct {
	BookingID string `json:"bookingId"`
}

// SeatReleaseConsumer builds the registered handler for
// BookingCancelled/BookingExpired (spec §4.H "example" consumers): load
// the booking's segments and release each one's held seat. Over-release
// is rejected by InventoryService's overcapacity guard, which this
// consumer treats as already-done rather than a failure, making delivery
// idempotent under at-least-once retry.
func SeatReleaseConsumer(bookings repository.BookingRepository, inventory *service.InventoryService) Consumer {
	return func(ctx context.Context, msg *domain.OutboxMessage) error {
		var payload bookingIDPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
		}

		b, err := bookings.FindById(ctx, domain.BookingId(payload.BookingID))
		if err != nil {
			if domain.IsNotFoundError(err) {
				return nil
			}
			return err
		}

		for _, seg := range b.Segments {
			_, err := inventory.ReleaseSeats(ctx, seg.FlightId, seg.Cabin, 1)
			if err != nil {
				var overcap *domain.InventoryOvercapacityError
				if isOvercapacity(err, &overcap) {
					continue
				}
				return err
			}
		}
		return nil
	}
}

func isOvercapacity(err error, target **domain.InventoryOvercapacityError) bool {
	if oc, ok := err.(*domain.InventoryOvercapacityError); ok {
		*target = oc
		return true
	}
	return false
}

// ticketIssuedPayload decodes the fields TicketIssued carries that the
// notification consumer needs.
type ticketIssuedPayload struct {
	BookingID    string `json:"bookingId"`
	TicketNumber string `json:"ticketNumber"`
}

// TicketNotificationConsumer builds the registered handler for
// TicketIssued: looks up the booking's lead passenger and dispatches a
// ticket-issued notification via the NotificationGateway contract (spec
// §4.G "fire TicketIssued via outbox for the notification gateway to
// consume").
func TicketNotificationConsumer(bookings repository.BookingRepository, notifications gateway.NotificationGateway) Consumer {
	return func(ctx context.Context, msg *domain.OutboxMessage) error {
		var payload ticketIssuedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode TicketIssued payload: %w", err)
		}

		b, err := bookings.FindById(ctx, domain.BookingId(payload.BookingID))
		if err != nil {
			if domain.IsNotFoundError(err) {
				return nil
			}
			return err
		}
		if len(b.Passengers) == 0 {
			return nil
		}
		lead := b.Passengers[0]

		return notifications.Send(ctx, gateway.Notification{
			Recipient: lead.Email,
			Template:  "ticket_issued",
			Data: map[string]string{
				"ticketNumber": payload.TicketNumber,
				"firstName":    lead.FirstName,
				"lastName":     lead.LastName,
				"pnrCode":      string(b.PnrCode),
			},
		})
	}
}
