package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNetwork indicates no response was received (connection failure or timeout)
type ErrNetwork struct {
	Err error
}

func (e ErrNetwork) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrStatus carries a non-2xx server response
type ErrStatus struct {
	StatusCode int
	Body       []byte
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// ErrTenantSuspended indicates the active tenant's subscription expired (403)
type ErrTenantSuspended struct {
	Detail string
	Status ErrStatus
}

func (e ErrTenantSuspended) Error() string {
	return fmt.Sprintf("tenant suspended: %s", e.Detail)
}

func (e ErrTenantSuspended) Unwrap() error {
	return e.Status
}

// ErrRateLimited indicates too many requests (429)
type ErrRateLimited struct {
	RetryAfter int // seconds
}

func (e ErrRateLimited) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %d seconds)", e.RetryAfter)
	}
	return "rate limited"
}

// ErrRefreshRejected indicates the refresh endpoint refused the refresh token
type ErrRefreshRejected struct {
	StatusCode int
}

func (e ErrRefreshRejected) Error() string {
	if e.StatusCode == 0 {
		return "refresh rejected: no access token in response"
	}
	return fmt.Sprintf("refresh rejected with status %d", e.StatusCode)
}

var errNoRefreshToken = errors.New("no refresh token stored")

// IsNetwork reports whether err means no response was received
func IsNetwork(err error) bool {
	var e ErrNetwork
	return errors.As(err, &e)
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var e ErrStatus
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsUnauthorized reports a 401 that could not be recovered
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsConflict reports a 409
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsTenantSuspended reports a 403 "Subscription expired"
func IsTenantSuspended(err error) bool {
	var e ErrTenantSuspended
	return errors.As(err, &e)
}
