package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/dto"
	"github.com/bakate/avionics/internal/query"
	"github.com/bakate/avionics/internal/service"
	"github.com/bakate/avionics/pkg/response"
)

// BookingHandler implements the booking HTTP surface of spec §6's
// `/api/bookings*` table.
type BookingHandler struct {
	bookings *service.BookingService
	queries  *query.Queries
}

func NewBookingHandler(bookings *service.BookingService, queries *query.Queries) *BookingHandler {
	return &BookingHandler{bookings: bookings, queries: queries}
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(c *gin.Context) {
	var req dto.BookFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cmd := service.BookFlightCommand{
		Passengers: make([]domain.Passenger, 0, len(req.Passengers)),
		Segments:   make([]service.SegmentRequest, 0, len(req.Segments)),
	}
	for _, p := range req.Passengers {
		cmd.Passengers = append(cmd.Passengers, domain.Passenger{
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Email:       p.Email,
			DateOfBirth: p.DateOfBirth,
			Gender:      domain.Gender(p.Gender),
			Type:        domain.PassengerType(p.Type),
		})
	}
	for _, s := range req.Segments {
		cmd.Segments = append(cmd.Segments, service.SegmentRequest{
			FlightId:   domain.FlightId(s.FlightId),
			Cabin:      domain.CabinClass(s.Cabin),
			SeatNumber: s.SeatNumber,
		})
	}

	result, err := h.bookings.BookFlight(c.Request.Context(), cmd)
	if err != nil {
		handleError(c, err)
		return
	}

	resp := dto.BookFlightResponse{Booking: dto.FromBooking(result.Booking)}
	if result.Checkout != nil {
		resp.CheckoutUrl = result.Checkout.RedirectURL
		resp.CheckoutId = result.Checkout.ID
	}
	response.Created(c, resp)
}

// Confirm handles POST /bookings/:id/confirm.
func (h *BookingHandler) Confirm(c *gin.Context) {
	id := domain.BookingId(c.Param("id"))
	b, err := h.bookings.ConfirmBooking(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromBooking(b))
}

// Cancel handles POST /bookings/:id/cancel.
func (h *BookingHandler) Cancel(c *gin.Context) {
	id := domain.BookingId(c.Param("id"))

	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	b, err := h.bookings.CancelBooking(c.Request.Context(), id, req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromBooking(b))
}

// GetByPnr handles GET /bookings/pnr/:pnr.
func (h *BookingHandler) GetByPnr(c *gin.Context) {
	summary, err := h.queries.FindByPnr(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		handleQueryError(c, err)
		return
	}
	response.Success(c, toDtoSummary(*summary))
}

// List handles GET /bookings.
func (h *BookingHandler) List(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	summaries, err := h.queries.ListAll(c.Request.Context(), limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, toDtoSummaries(summaries))
}

// PassengerHistory handles GET /bookings/passenger/:id.
func (h *BookingHandler) PassengerHistory(c *gin.Context) {
	history, err := h.queries.PassengerHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]dto.PassengerBookingHistory, 0, len(history))
	for _, h := range history {
		out = append(out, dto.PassengerBookingHistory{
			BookingID: h.BookingID, PnrCode: h.PnrCode, Status: h.Status,
			FlightId: h.FlightId, Cabin: h.Cabin, CreatedAt: h.CreatedAt,
		})
	}
	response.Success(c, out)
}

// Search handles GET /bookings/search?name&limit.
func (h *BookingHandler) Search(c *gin.Context) {
	name := c.Query("name")
	limit := parseLimit(c.Query("limit"))
	summaries, err := h.queries.SearchByName(c.Request.Context(), name, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, toDtoSummaries(summaries))
}

func parseLimit(raw string) int {
	if raw == "" {
		return 100
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 100
	}
	if n > 100 {
		return 100
	}
	return n
}

func toDtoSummary(s query.BookingSummary) dto.BookingSummary {
	passengers := make([]dto.PassengerSummary, 0, len(s.Passengers))
	for _, p := range s.Passengers {
		passengers = append(passengers, dto.PassengerSummary{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Email: p.Email})
	}
	segments := make([]dto.SegmentSummary, 0, len(s.Segments))
	for _, seg := range s.Segments {
		segments = append(segments, dto.SegmentSummary{
			ID: seg.ID, FlightId: seg.FlightId, Cabin: seg.Cabin,
			PriceAmount: seg.PriceAmount, PriceCurrency: seg.PriceCurrency, SeatNumber: seg.SeatNumber,
		})
	}
	return dto.BookingSummary{
		ID: s.ID, PnrCode: s.PnrCode, Status: s.Status, ExpiresAt: s.ExpiresAt, CreatedAt: s.CreatedAt,
		Passengers: passengers, Segments: segments,
	}
}

func toDtoSummaries(in []query.BookingSummary) []dto.BookingSummary {
	out := make([]dto.BookingSummary, 0, len(in))
	for _, s := range in {
		out = append(out, toDtoSummary(s))
	}
	return out
}

func handleQueryError(c *gin.Context, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		response.NotFound(c, "booking not found")
		return
	}
	response.InternalError(c, err)
}

// handleError maps a domain error to an HTTP response per spec §6's error
// table: tagged business errors dispatch by errors.As/errors.Is to a fixed
// status; anything unrecognized falls through to a generic 500 with no
// internal detail leaked, per spec §7.
func handleError(c *gin.Context, err error) {
	var (
		flightFull    *domain.FlightFullError
		optimistic    *domain.OptimisticLockingError
		invalidAmount *domain.InvalidAmountError
		unsupported   *domain.UnsupportedCurrencyError
		currencyMix   *domain.CurrencyMismatchError
		malformed     *domain.MalformedPayloadError
		bookingStatus *domain.BookingStatusError
		paymentDecl   *domain.PaymentDeclinedError

		status  int
		code    string
		message string
	)

	switch {
	case errors.As(err, &flightFull):
		status, code, message = http.StatusConflict, "FLIGHT_FULL", flightFull.Error()
	case errors.As(err, &optimistic):
		status, code, message = http.StatusConflict, "OPTIMISTIC_LOCKING", optimistic.Error()
	case errors.Is(err, domain.ErrFlightNotFound):
		status, code, message = http.StatusNotFound, "FLIGHT_NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrBookingNotFound):
		status, code, message = http.StatusNotFound, "BOOKING_NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrBookingExpired):
		status, code, message = http.StatusGone, "BOOKING_EXPIRED", err.Error()
	case errors.As(err, &invalidAmount):
		status, code, message = http.StatusBadRequest, "INVALID_AMOUNT", invalidAmount.Error()
	case errors.As(err, &unsupported):
		status, code, message = http.StatusBadRequest, "UNSUPPORTED_CURRENCY", unsupported.Error()
	case errors.As(err, &currencyMix):
		status, code, message = http.StatusBadRequest, "CURRENCY_MISMATCH", currencyMix.Error()
	case errors.As(err, &malformed):
		status, code, message = http.StatusBadRequest, "MALFORMED_PAYLOAD", malformed.Error()
	case errors.As(err, &bookingStatus):
		status, code, message = http.StatusBadRequest, "BOOKING_STATUS", bookingStatus.Error()
	case errors.Is(err, domain.ErrRequestTimeout):
		status, code, message = http.StatusGatewayTimeout, "TIMEOUT", err.Error()
	case errors.As(err, &paymentDecl):
		status, code, message = http.StatusPaymentRequired, "PAYMENT_DECLINED", paymentDecl.Error()
	case errors.Is(err, domain.ErrPaymentApiUnavailable):
		status, code, message = http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", err.Error()
	default:
		response.InternalError(c, err)
		return
	}

	response.Error(c, status, code, message, "")
}
