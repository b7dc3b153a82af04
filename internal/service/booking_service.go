package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/gateway"
	"github.com/bakate/avionics/internal/repository"
	"github.com/bakate/avionics/pkg/logger"
)

// bookFlightTimeout bounds the whole hold→persist→checkout saga, per
// spec §4.G. A slow payment provider should not hold seats indefinitely.
const bookFlightTimeout = 30 * time.Second

// SegmentRequest is one requested flight leg of a booking.
type SegmentRequest struct {
	FlightId   domain.FlightId
	Cabin      domain.CabinClass
	SeatNumber *string
}

// BookFlightCommand is the input to BookingService.BookFlight.
type BookFlightCommand struct {
	Passengers []domain.Passenger
	Segments   []SegmentRequest
}

// BookFlightResult is returned on a successful saga run: the booking is
// Held and a checkout session has been opened for the caller to complete
// payment against.
type BookFlightResult struct {
	Booking  *domain.Booking
	Checkout *gateway.CheckoutSession
}

// heldSegment records one successfully completed hold, so a later
// failure can release exactly what was taken and nothing more.
type heldSegment struct {
	flightID domain.FlightId
	cabin    domain.CabinClass
}

// BookingService orchestrates the booking saga (spec §4.G): hold seats
// for every segment, persist the booking, open a checkout. Any step
// failing after at least one hold succeeded triggers compensation in
// reverse order before the triggering error is returned to the caller
// unwrapped, so HTTP dispatch on its concrete type (spec §6) still works.
type BookingService struct {
	uow       repository.UnitOfWorker
	bookings  repository.BookingRepository
	inventory *InventoryService
	payments  gateway.PaymentGateway
	holdTTL   time.Duration
	audit     repository.AuditLogRepository
}

func NewBookingService(uow repository.UnitOfWorker, bookings repository.BookingRepository, inventory *InventoryService, payments gateway.PaymentGateway, holdTTL time.Duration) *BookingService {
	return &BookingService{uow: uow, bookings: bookings, inventory: inventory, payments: payments, holdTTL: holdTTL}
}

// SetAuditLog enables best-effort audit_log writes for this service's
// operations (spec §6 schema, §9 supplemented features). Optional: a nil
// audit repository (the default) simply skips the write.
func (s *BookingService) SetAuditLog(audit repository.AuditLogRepository) {
	s.audit = audit
}

// recordAudit writes a best-effort audit_log row. Failures are logged
// and never propagate: this is observability, not a correctness
// mechanism.
func (s *BookingService) recordAudit(ctx context.Context, bookingID domain.BookingId, operation string, changes interface{}) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(changes)
	if err != nil {
		logger.Get().Errorw("audit log: marshal changes", "bookingId", bookingID, "operation", operation, "error", err)
		return
	}
	entry := repository.AuditLogEntry{
		AggregateType: "Booking",
		AggregateID:   string(bookingID),
		Operation:     operation,
		Changes:       payload,
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		logger.Get().Errorw("audit log: insert failed", "bookingId", bookingID, "operation", operation, "error", err)
	}
}

// asRequestTimeout reports a saga failure caused by bookFlightTimeout
// lapsing as domain.ErrRequestTimeout (spec §4.G: "timeout surfaces as
// RequestTimeout and triggers compensation"), so transport dispatch
// (spec §6) maps it to 504 instead of whatever raw error the step that
// was in flight happened to return. Any other error passes through
// unchanged.
func asRequestTimeout(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != context.DeadlineExceeded {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrRequestTimeout, err)
}

// BookFlight runs the full saga described in the BookingService comment above.
func (s *BookingService) BookFlight(ctx context.Context, cmd BookFlightCommand) (*BookFlightResult, error) {
	ctx, cancel := context.WithTimeout(ctx, bookFlightTimeout)
	defer cancel()

	now := time.Now()

	segments := make([]domain.BookingSegment, 0, len(cmd.Segments))
	held := make([]heldSegment, 0, len(cmd.Segments))

	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			h := held[i]
			// Best-effort: a release error is ignored. No booking row
			// exists yet for these holds, so the expiration reaper
			// does not see them either.
			_, _ = s.inventory.ReleaseSeats(ctx, h.flightID, h.cabin, 1)
		}
	}

	for _, segReq := range cmd.Segments {
		price, _, err := s.inventory.HoldSeats(ctx, segReq.FlightId, segReq.Cabin, 1)
		if err != nil {
			releaseHeld()
			return nil, asRequestTimeout(ctx, err)
		}
		held = append(held, heldSegment{flightID: segReq.FlightId, cabin: segReq.Cabin})
		segments = append(segments, domain.BookingSegment{
			ID:         domain.NewSegmentId(),
			FlightId:   segReq.FlightId,
			Cabin:      segReq.Cabin,
			Price:      price,
			SeatNumber: segReq.SeatNumber,
		})
	}

	for i := range cmd.Passengers {
		if cmd.Passengers[i].ID == "" {
			cmd.Passengers[i].ID = domain.NewPassengerId()
		}
	}

	bookingID := domain.NewBookingId()
	pnr, err := generatePnr()
	if err != nil {
		releaseHeld()
		return nil, asRequestTimeout(ctx, err)
	}

	booking, events, err := domain.CreateBooking(bookingID, pnr, cmd.Passengers, segments, now, s.holdTTL)
	if err != nil {
		releaseHeld()
		return nil, asRequestTimeout(ctx, err)
	}

	if err := s.uow.Do(ctx, func(ctx context.Context) error {
		return s.bookings.Insert(ctx, booking, events)
	}); err != nil {
		releaseHeld()
		return nil, asRequestTimeout(ctx, err)
	}

	totalPrice := domain.ZeroMoney(segments[0].Price.Currency)
	for _, seg := range segments {
		totalPrice, err = totalPrice.Add(seg.Price)
		if err != nil {
			return nil, asRequestTimeout(ctx, s.cancelAndCompensate(ctx, booking, held, err))
		}
	}

	checkout, err := s.payments.CreateCheckout(ctx, bookingID, totalPrice)
	if err != nil {
		return nil, asRequestTimeout(ctx, s.cancelAndCompensate(ctx, booking, held, err))
	}

	s.recordAudit(ctx, bookingID, "BookFlight", map[string]any{"status": booking.Status, "checkoutId": checkout.ID})
	return &BookFlightResult{Booking: booking, Checkout: checkout}, nil
}

// cancelAndCompensate marks an already-persisted booking Cancelled in a
// fresh unit of work, releases every segment already held, then
// re-raises the original, unmasked error so HTTP dispatch on its
// concrete type still works.
func (s *BookingService) cancelAndCompensate(ctx context.Context, booking *domain.Booking, held []heldSegment, cause error) error {
	_ = s.uow.Do(ctx, func(ctx context.Context) error {
		cancelled, events, err := booking.Cancel("payment checkout failed")
		if err != nil {
			return err
		}
		_, err = s.bookings.Save(ctx, cancelled, events)
		return err
	})
	for i := len(held) - 1; i >= 0; i-- {
		h := held[i]
		_, _ = s.inventory.ReleaseSeats(ctx, h.flightID, h.cabin, 1)
	}
	return cause
}

// ConfirmBooking transitions a Held booking to Confirmed, then
// immediately issues its ticket, emitting TicketIssued. Idempotent on a
// booking already Ticketed; fails with BookingStatus on a booking that
// has already terminated as Expired or Cancelled (spec §4.G).
func (s *BookingService) ConfirmBooking(ctx context.Context, id domain.BookingId) (*domain.Booking, error) {
	var result *domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context) error {
		b, err := s.bookings.FindById(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == domain.BookingTicketed {
			result = b
			return nil
		}

		now := time.Now()
		confirmed, confirmEvents, err := b.Confirm(now)
		if err != nil {
			return err
		}
		saved, err := s.bookings.Save(ctx, confirmed, confirmEvents)
		if err != nil {
			return err
		}

		ticketNumber, err := domain.NewTicketNumber()
		if err != nil {
			return err
		}
		ticketed, ticketEvents, err := saved.IssueTicket(ticketNumber)
		if err != nil {
			return err
		}
		saved, err = s.bookings.Save(ctx, ticketed, ticketEvents)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, id, "ConfirmBooking", map[string]any{"status": result.Status})
	return result, nil
}

// CancelBooking transitions a booking to Cancelled and releases every
// segment's held seats.
func (s *BookingService) CancelBooking(ctx context.Context, id domain.BookingId, reason string) (*domain.Booking, error) {
	var result *domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context) error {
		b, err := s.bookings.FindById(ctx, id)
		if err != nil {
			return err
		}
		cancelled, events, err := b.Cancel(reason)
		if err != nil {
			return err
		}
		saved, err := s.bookings.Save(ctx, cancelled, events)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, seg := range result.Segments {
		if _, err := s.inventory.ReleaseSeats(ctx, seg.FlightId, seg.Cabin, 1); err != nil {
			return result, err
		}
	}
	s.recordAudit(ctx, id, "CancelBooking", map[string]any{"status": result.Status, "reason": reason})
	return result, nil
}
