package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/erauner12/shopbook/internal/apiclient"
	"github.com/erauner12/shopbook/internal/metrics"
)

// CreatePath is the booking creation endpoint
const CreatePath = "/booking/create"

// Method is how the customer will pay
type Method string

const (
	MethodCash   Method = "cash"
	MethodOnline Method = "online"
)

// Payment statuses sent with the booking
const (
	PaymentStatusCash   = "Pending to be paid on cash"
	PaymentStatusOnline = "Online Pending"
)

// Step is where the flow goes after a booking is created
type Step int

const (
	StepConfirmation Step = iota
	StepPayment
)

func (s Step) String() string {
	if s == StepPayment {
		return "payment"
	}
	return "confirmation"
}

// Booking is the server-created booking
type Booking struct {
	ID            string
	ServiceID     string
	BarberID      string
	CustomerID    string
	Time          time.Time
	PaymentStatus string
}

// Outcome is the result of a successful submit
type Outcome struct {
	Booking  Booking
	Next     Step
	Checkout *Checkout // set when Next is StepPayment and initiation succeeded
}

// Pipeline is the part of the request pipeline booking needs
type Pipeline interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
}

// PaymentInitiator starts online payment for a created booking
type PaymentInitiator interface {
	Initiate(ctx context.Context, bookingID string, amount float64) (*Checkout, error)
}

type createRequest struct {
	ServiceID     string `json:"serviceId" validate:"required"`
	BarberID      string `json:"barberId" validate:"required"`
	CustomerID    string `json:"customerId" validate:"required"`
	BookingTime   string `json:"bookingTime" validate:"required"`
	CustomerNotes string `json:"customerNotes"`
	PaymentStatus string `json:"paymentStatus" validate:"oneof='Pending to be paid on cash' 'Online Pending'"`
}

// Config configures a Service
type Config struct {
	// AutoRetries is how many times a create call that got no response is
	// re-sent with the same idempotency key.
	AutoRetries int
}

// Service submits bookings
type Service struct {
	api         Pipeline
	payments    PaymentInitiator
	autoRetries int
	validate    *validator.Validate
}

// NewService creates a booking service
func NewService(api Pipeline, payments PaymentInitiator, cfg Config) *Service {
	return &Service{
		api:         api,
		payments:    payments,
		autoRetries: cfg.AutoRetries,
		validate:    validator.New(),
	}
}

// Submit creates a booking for the form's current intent.
//
// A 409 returns ErrSlotTaken and clears only the selected time. Any other
// failure leaves the form as it was. If the form is reset while the call is
// in flight the result is discarded with ErrSuperseded.
func (s *Service) Submit(ctx context.Context, form *Form, customerID string, method Method) (*Outcome, error) {
	if customerID == "" {
		metrics.BookingsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrReauthenticate
	}

	sel, key, gen, err := form.begin()
	if errors.Is(err, ErrIncompleteSelection) {
		metrics.BookingsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create idempotency key: %w", err)
	}

	paymentStatus := PaymentStatusCash
	if method == MethodOnline {
		paymentStatus = PaymentStatusOnline
	}

	body := createRequest{
		ServiceID:     sel.ServiceID,
		BarberID:      sel.BarberID,
		CustomerID:    customerID,
		BookingTime:   sel.Time.UTC().Format(time.RFC3339),
		CustomerNotes: sel.Notes,
		PaymentStatus: paymentStatus,
	}
	if err := s.validate.Struct(body); err != nil {
		metrics.BookingsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("invalid booking request: %w", err)
	}

	logger := log.With().
		Str("idempotencyKey", key).
		Str("barberId", sel.BarberID).
		Time("bookingTime", sel.Time).
		Logger()

	var resp *apiclient.Response
	for try := 0; ; try++ {
		resp, err = s.api.Do(ctx, apiclient.Request{
			Method: http.MethodPost,
			Path:   CreatePath,
			Header: http.Header{apiclient.HeaderIdempotency: {key}},
			Body:   body,
		})
		if err == nil || !apiclient.IsNetwork(err) || try >= s.autoRetries {
			break
		}
		logger.Warn().Err(err).Int("try", try+1).Msg("booking create got no response - retrying with same key")
	}

	if !form.current(gen) {
		metrics.BookingsTotal.WithLabelValues("superseded").Inc()
		logger.Debug().Msg("booking result discarded - form was reset")
		return nil, ErrSuperseded
	}

	if err != nil {
		if apiclient.IsConflict(err) {
			form.clearTime(gen)
			metrics.BookingsTotal.WithLabelValues("conflict").Inc()
			logger.Info().Msg("slot taken by another customer")
			return nil, fmt.Errorf("%w: %s", ErrSlotTaken, apiclient.ErrorMessage(err, "conflict"))
		}
		metrics.BookingsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	booking, err := parseBooking(resp.Body)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if booking.ServiceID == "" {
		booking.ServiceID = sel.ServiceID
	}
	if booking.BarberID == "" {
		booking.BarberID = sel.BarberID
	}
	if booking.CustomerID == "" {
		booking.CustomerID = customerID
	}
	if booking.Time.IsZero() {
		booking.Time = sel.Time
	}
	booking.PaymentStatus = paymentStatus

	form.complete(gen)
	metrics.BookingsTotal.WithLabelValues("created").Inc()
	logger.Info().Str("bookingId", booking.ID).Str("paymentStatus", paymentStatus).Msg("booking created")

	out := &Outcome{Booking: booking, Next: StepConfirmation}
	if method != MethodOnline {
		return out, nil
	}

	out.Next = StepPayment
	if s.payments == nil {
		return out, nil
	}
	checkout, err := s.payments.Initiate(ctx, booking.ID, sel.Price)
	if err != nil {
		logger.Warn().Err(err).Msg("payment initiation failed")
		return out, ErrPaymentInitiation{BookingID: booking.ID, Err: err}
	}
	out.Checkout = checkout
	return out, nil
}

// parseBooking reads {"booking": {...}} where the id may be "id" or "_id"
func parseBooking(body []byte) (Booking, error) {
	res := gjson.ParseBytes(body)
	b := res.Get("booking")
	if !b.Exists() {
		b = res
	}

	id := firstString(b, "id", "_id")
	if id == "" {
		return Booking{}, ErrNoBookingID
	}

	out := Booking{
		ID:         id,
		ServiceID:  firstString(b, "serviceId", "service"),
		BarberID:   firstString(b, "barberId", "barber"),
		CustomerID: firstString(b, "customerId", "customer"),
	}
	if t := firstString(b, "bookingTime", "booking_time"); t != "" {
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			out.Time = parsed
		}
	}
	return out, nil
}

func firstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := res.Get(p)
		if v.Exists() && (v.Type == gjson.String || v.Type == gjson.Number) && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// IsSlotTaken reports a booking conflict
func IsSlotTaken(err error) bool {
	return errors.Is(err, ErrSlotTaken)
}
