package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/erauner12/shopbook/internal/credstore"
)

// Managed headers. The client injects these on every attempt.
const (
	HeaderAuthorization = "Authorization"
	HeaderTenant        = "X-Barbershop-Id"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderIdempotency   = "Idempotency-Key"
)

// SessionExpiredReason is passed to Hooks.OnUnauthorized after a failed refresh.
const SessionExpiredReason = "Session expired"

// SubscriptionExpiredDetail is the 403 marker for a suspended tenant.
const SubscriptionExpiredDetail = "Subscription expired"

// CredentialSource abstracts the credential vault for testing
type CredentialSource interface {
	// Credentials returns a consistent snapshot of the stored tokens
	Credentials(ctx context.Context) (credstore.Credentials, error)

	// SwapAccessToken replaces the access token if it still equals stale
	SwapAccessToken(ctx context.Context, stale, fresh string) (string, error)

	// Clear removes all stored credentials and tenant selection
	Clear(ctx context.Context) error
}

// Hooks receives the cross-cutting auth side effects of the pipeline.
// Implementations must not issue requests through the client synchronously.
type Hooks interface {
	// OnUnauthorized is called once credentials were cleared after an
	// irrecoverable 401.
	OnUnauthorized(reason string)

	// OnTenantSuspended is called on 403 "Subscription expired". Credentials
	// are left untouched.
	OnTenantSuspended(detail string)
}

type noopHooks struct{}

func (noopHooks) OnUnauthorized(string)    {}
func (noopHooks) OnTenantSuspended(string) {}

// Request describes an outbound API call. Path is relative to the base URL.
// Body is JSON-encoded unless it is already a []byte.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Response is a fully-read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// attempt threads retry state through doWithRetry instead of flagging the
// request itself.
type attempt struct {
	original      Request
	body          []byte
	correlationID string
	n             int  // sends so far
	retried       bool // a refresh-and-retry already happened
	throttled     int  // 429 backoffs so far
}

func (a attempt) next() attempt {
	a.n++
	return a
}
