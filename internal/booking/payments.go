package booking

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/erauner12/shopbook/internal/apiclient"
)

// PaymentsPath starts online payment for a booking
const PaymentsPath = "/booking/payments"

// Checkout is what the payment gateway needs to continue in a browser
type Checkout struct {
	URL          string
	ClientSecret string
}

// ErrPaymentRejected is a 2xx payments response with success=false
type ErrPaymentRejected struct {
	Message string
}

func (e ErrPaymentRejected) Error() string {
	if e.Message == "" {
		return "payment initiation rejected"
	}
	return e.Message
}

// HTTPPayments initiates payment through the backend. Retries for the same
// booking reuse one idempotency key.
type HTTPPayments struct {
	api Pipeline

	mu   sync.Mutex
	keys map[string]string // bookingID -> idempotency key
}

// NewHTTPPayments creates a backend payment initiator
func NewHTTPPayments(api Pipeline) *HTTPPayments {
	return &HTTPPayments{api: api, keys: make(map[string]string)}
}

func (p *HTTPPayments) key(bookingID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.keys[bookingID]
	if !ok {
		k = uuid.NewString()
		p.keys[bookingID] = k
	}
	return k
}

func (p *HTTPPayments) forget(bookingID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, bookingID)
}

// Initiate asks the backend to start payment of amount for bookingID
func (p *HTTPPayments) Initiate(ctx context.Context, bookingID string, amount float64) (*Checkout, error) {
	resp, err := p.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   PaymentsPath,
		Header: http.Header{apiclient.HeaderIdempotency: {p.key(bookingID)}},
		Body: map[string]any{
			"bookingId":   bookingID,
			"totalAmount": amount,
		},
	})
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(resp.Body)
	if ok := res.Get("success"); ok.Exists() && !ok.Bool() {
		return nil, ErrPaymentRejected{Message: res.Get("message").String()}
	}

	p.forget(bookingID)
	return &Checkout{
		URL:          res.Get("checkout_url").String(),
		ClientSecret: res.Get("client_secret").String(),
	}, nil
}
