package booking

import (
	"errors"

	"github.com/erauner12/shopbook/internal/apiclient"
)

// User-facing messages
const (
	SlotTakenMessage       = "This slot was just booked. Please choose another time."
	ReauthenticateMessage  = "Please log in again to book an appointment."
	IncompleteMessage      = "Please select a barber and a time."
	BookingFallbackMessage = "Booking failed. Please try again."
)

var (
	// ErrSlotTaken means another customer booked the slot first (409)
	ErrSlotTaken = errors.New("slot was just booked")

	// ErrReauthenticate means no customer id is known
	ErrReauthenticate = errors.New("customer id unknown: log in again")

	// ErrIncompleteSelection means barber or time is missing
	ErrIncompleteSelection = errors.New("barber and time must be selected")

	// ErrSuperseded means a newer action replaced this one while it was in flight
	ErrSuperseded = errors.New("superseded by a newer request")

	// ErrNoBookingID means the create response carried no booking id
	ErrNoBookingID = errors.New("booking response has no id")
)

// ErrPaymentInitiation wraps a failure to start online payment for a booking
// that was created
type ErrPaymentInitiation struct {
	BookingID string
	Err       error
}

func (e ErrPaymentInitiation) Error() string {
	return "failed to initiate payment for booking " + e.BookingID + ": " + e.Err.Error()
}

func (e ErrPaymentInitiation) Unwrap() error {
	return e.Err
}

// Message derives the text to show for a booking error
func Message(err error) string {
	switch {
	case errors.Is(err, ErrSlotTaken):
		return SlotTakenMessage
	case errors.Is(err, ErrReauthenticate):
		return ReauthenticateMessage
	case errors.Is(err, ErrIncompleteSelection):
		return IncompleteMessage
	}
	return apiclient.ErrorMessage(err, BookingFallbackMessage)
}
