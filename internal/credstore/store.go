// Package credstore persists the device credentials (access token, refresh
// token, customer profile, active tenant and a few preferences) as plain
// string key-value pairs.
//
// The Store interface is the only thing a platform has to provide. Vault layers
// typed accessors on top and serialises read-modify-write of the token pair.
package credstore

import "context"

// Keys used in the underlying Store. Each is an independent string entry.
const (
	KeyAccessToken    = "token"
	KeyRefreshToken   = "refreshToken"
	KeyCustomer       = "customerData"
	KeyActiveTenant   = "active_barbershop_id"
	KeyRolePreference = "user_role_preference"
	KeyPendingInvite  = "pending_invite_token"
)

// AllKeys lists every key cleared in bulk on logout.
var AllKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeyCustomer,
	KeyActiveTenant,
	KeyRolePreference,
	KeyPendingInvite,
}

// Store is a string key-value store (platform secure storage, Redis, memory).
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes the given keys. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error
}
