package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Credentials is a consistent snapshot of the stored credential triple.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	TenantID     string
}

// Anonymous reports whether the caller has no access token.
func (c Credentials) Anonymous() bool {
	return c.AccessToken == ""
}

// Customer is the serialized customer profile saved at login.
type Customer struct {
	ID       string `json:"customerId"`
	Name     string `json:"customerName"`
	Email    string `json:"customerEmail"`
	Role     string `json:"customerRole"`
	Phone    string `json:"customerPhone"`
	Location string `json:"customerLocation,omitempty"`
}

// Vault gives typed access to a Store.
//
// Refresh, login and logout all write the token pair. Every read and write of
// the pair goes through mu so no caller observes a half-replaced pair.
type Vault struct {
	mu    sync.RWMutex
	store Store
}

// NewVault wraps store
func NewVault(store Store) *Vault {
	return &Vault{store: store}
}

// Credentials returns the current access token, refresh token and tenant id.
func (v *Vault) Credentials(ctx context.Context) (Credentials, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var c Credentials
	var err error
	if c.AccessToken, err = v.get(ctx, KeyAccessToken); err != nil {
		return Credentials{}, err
	}
	if c.RefreshToken, err = v.get(ctx, KeyRefreshToken); err != nil {
		return Credentials{}, err
	}
	if c.TenantID, err = v.get(ctx, KeyActiveTenant); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// AccessToken returns the stored access token ("" when anonymous).
func (v *Vault) AccessToken(ctx context.Context) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.get(ctx, KeyAccessToken)
}

// SetTokens replaces the token pair. An empty refresh token leaves the stored
// one in place (some login flows only return an access token).
func (v *Vault) SetTokens(ctx context.Context, access, refresh string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if access != "" {
		if err := v.store.Set(ctx, KeyAccessToken, access); err != nil {
			return fmt.Errorf("store access token: %w", err)
		}
	}
	if refresh != "" {
		if err := v.store.Set(ctx, KeyRefreshToken, refresh); err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
	}
	return nil
}

// SwapAccessToken replaces the access token only if it still equals stale.
// It returns the token that is current after the call. This is the write half
// of a refresh: a concurrent logout or login wins over a late refresh.
func (v *Vault) SwapAccessToken(ctx context.Context, stale, fresh string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	current, err := v.get(ctx, KeyAccessToken)
	if err != nil {
		return "", err
	}
	if current != stale {
		return current, nil
	}
	if err := v.store.Set(ctx, KeyAccessToken, fresh); err != nil {
		return "", fmt.Errorf("store access token: %w", err)
	}
	return fresh, nil
}

// Clear removes every credential and preference key.
func (v *Vault) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.store.Remove(ctx, AllKeys...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// ActiveTenantID returns the persisted tenant id ("" when none).
func (v *Vault) ActiveTenantID(ctx context.Context) (string, error) {
	return v.getLocked(ctx, KeyActiveTenant)
}

// SetActiveTenantID persists id; an empty id removes the entry.
func (v *Vault) SetActiveTenantID(ctx context.Context, id string) error {
	return v.setOrRemove(ctx, KeyActiveTenant, id)
}

// RolePreference returns the stored role preference ("" when none).
func (v *Vault) RolePreference(ctx context.Context) (string, error) {
	return v.getLocked(ctx, KeyRolePreference)
}

// SetRolePreference persists role; empty removes it.
func (v *Vault) SetRolePreference(ctx context.Context, role string) error {
	return v.setOrRemove(ctx, KeyRolePreference, role)
}

// PendingInvite returns a staff invite token captured before login.
func (v *Vault) PendingInvite(ctx context.Context) (string, error) {
	return v.getLocked(ctx, KeyPendingInvite)
}

// SetPendingInvite persists token; empty removes it.
func (v *Vault) SetPendingInvite(ctx context.Context, token string) error {
	return v.setOrRemove(ctx, KeyPendingInvite, token)
}

// Customer returns the stored profile, or nil when none is stored.
func (v *Vault) Customer(ctx context.Context) (*Customer, error) {
	raw, err := v.getLocked(ctx, KeyCustomer)
	if err != nil || raw == "" {
		return nil, err
	}
	var c Customer
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode customer profile: %w", err)
	}
	return &c, nil
}

// SetCustomer serializes and stores the profile.
func (v *Vault) SetCustomer(ctx context.Context, c Customer) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode customer profile: %w", err)
	}
	return v.setOrRemove(ctx, KeyCustomer, string(raw))
}

func (v *Vault) getLocked(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.get(ctx, key)
}

func (v *Vault) setOrRemove(ctx context.Context, key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if value == "" {
		if err := v.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
		return nil
	}
	if err := v.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// get reads key; caller must hold mu
func (v *Vault) get(ctx context.Context, key string) (string, error) {
	val, ok, err := v.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return val, nil
}
