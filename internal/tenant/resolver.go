package tenant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/shopbook/internal/apiclient"
	"github.com/erauner12/shopbook/internal/credstore"
)

// MyShopsPath lists the barbershops the caller owns or works at
const MyShopsPath = "/barbershops/my-shops/"

// Pipeline is the part of the request pipeline the resolver needs
type Pipeline interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
	SetTenant(id string)
}

// Resolver owns the active tenant and keeps the pipeline's tenant header in
// sync with it.
type Resolver struct {
	api   Pipeline
	vault *credstore.Vault

	mu        sync.RWMutex
	tenants   []Tenant
	active    *Tenant
	suspended string
	gen       uint64 // bumped by every state change; restore discards stale results
}

// NewResolver creates a resolver with no active tenant
func NewResolver(api Pipeline, vault *credstore.Vault) *Resolver {
	return &Resolver{api: api, vault: vault}
}

type myShopsResponse struct {
	Barbershops []Tenant `json:"barbershops"`
}

// fetch lists the caller's tenants
func (r *Resolver) fetch(ctx context.Context) ([]Tenant, error) {
	resp, err := r.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: MyShopsPath})
	if err != nil {
		return nil, err
	}
	var out myShopsResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode tenant list: %w", err)
	}
	return out.Barbershops, nil
}

// Load fetches the tenant list and remembers it. Errors are returned.
func (r *Resolver) Load(ctx context.Context) ([]Tenant, error) {
	list, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.tenants = list
	r.mu.Unlock()

	return append([]Tenant(nil), list...), nil
}

// Restore decides the active tenant after the session becomes authenticated:
// a persisted choice that is still in the list wins; a persisted choice that
// is not is purged; a single tenant is auto-selected; otherwise none.
//
// A failed list fetch leaves no tenant active but keeps the persisted choice.
// A successful fetch without a match, even an empty one, purges it. If SetActive
// or Reset runs while Restore is in flight, Restore's result is discarded.
func (r *Resolver) Restore(ctx context.Context) (*Tenant, error) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	token, err := r.vault.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	if token == "" {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.gen != gen {
			return r.activeLocked(), nil
		}
		r.tenants = nil
		r.active = nil
		r.suspended = ""
		r.api.SetTenant("")
		return nil, nil
	}

	list, fetchErr := r.fetch(ctx)
	fetched := fetchErr == nil
	if !fetched {
		log.Warn().Err(fetchErr).Msg("failed to load tenant list - keeping persisted tenant")
		list = nil
	}

	stored, err := r.vault.ActiveTenantID(ctx)
	if err != nil {
		return nil, err
	}
	storedID := ID(strings.TrimSpace(stored))

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		log.Debug().Msg("tenant restore superseded - discarding result")
		return r.activeLocked(), nil
	}

	r.tenants = list
	r.suspended = ""

	switch {
	case storedID != "" && fetched:
		if t, ok := find(list, storedID); ok {
			r.setLocked(&t)
			log.Info().Str("tenantId", t.ID.String()).Msg("restored active tenant")
			break
		}
		if err := r.vault.SetActiveTenantID(ctx, ""); err != nil {
			return nil, err
		}
		r.setLocked(nil)
		log.Info().Str("tenantId", storedID.String()).Msg("persisted tenant no longer available - cleared")

	case len(list) == 1:
		t := list[0]
		if err := r.vault.SetActiveTenantID(ctx, t.ID.String()); err != nil {
			return nil, err
		}
		r.setLocked(&t)
		log.Info().Str("tenantId", t.ID.String()).Msg("auto-selected only tenant")

	default:
		r.setLocked(nil)
	}

	return r.activeLocked(), nil
}

// SetActive switches the active tenant. An empty id clears it. The pipeline
// header is updated before SetActive returns.
func (r *Resolver) SetActive(ctx context.Context, id string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.suspended = ""

	tid := ID(strings.TrimSpace(id))
	if tid == "" {
		if err := r.vault.SetActiveTenantID(ctx, ""); err != nil {
			return nil, err
		}
		r.setLocked(nil)
		return nil, nil
	}

	t, ok := find(r.tenants, tid)
	if !ok {
		t = Tenant{ID: tid}
	}
	if err := r.vault.SetActiveTenantID(ctx, t.ID.String()); err != nil {
		return nil, err
	}
	r.setLocked(&t)

	log.Info().Str("tenantId", t.ID.String()).Bool("known", ok).Msg("switched active tenant")
	return r.activeLocked(), nil
}

// setLocked updates active and the pipeline header (caller must hold write lock)
func (r *Resolver) setLocked(t *Tenant) {
	r.active = t
	if t == nil {
		r.api.SetTenant("")
		return
	}
	r.api.SetTenant(t.ID.String())
}

func (r *Resolver) activeLocked() *Tenant {
	if r.active == nil {
		return nil
	}
	t := *r.active
	return &t
}

// Active returns a copy of the active tenant, or nil
func (r *Resolver) Active() *Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

// Tenants returns the last known tenant list
func (r *Resolver) Tenants() []Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tenant(nil), r.tenants...)
}

// IsOwner reports whether the caller owns the active tenant
func (r *Resolver) IsOwner() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isOwnerLocked()
}

func (r *Resolver) isOwnerLocked() bool {
	if r.active == nil {
		return false
	}
	if ownerMarker(r.active.OwnerRole) {
		return true
	}
	for _, t := range r.tenants {
		if t.ID == r.active.ID && ownerMarker(t.OwnerRole) {
			return true
		}
	}
	return false
}

// Role derives the caller's role for the active tenant
func (r *Resolver) Role() Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == nil {
		return RoleCustomer
	}
	if r.isOwnerLocked() {
		return RoleOwner
	}
	return staffRole(r.active.OwnerRole)
}

// OnSuspended flags the active tenant as unavailable. Credentials and the
// selection are left alone.
func (r *Resolver) OnSuspended(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = detail

	var id string
	if r.active != nil {
		id = r.active.ID.String()
	}
	log.Warn().Str("tenantId", id).Str("detail", detail).Msg("active tenant suspended")
}

// Suspended returns the suspension notice for the active tenant, if any
func (r *Resolver) Suspended() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suspended, r.suspended != ""
}

// Reset forgets all tenant state after logout. Persisted values are owned by
// the logout path.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.tenants = nil
	r.suspended = ""
	r.setLocked(nil)
}

// EnrollmentRequired reports whether the caller should see first-run
// enrollment: the tenant list loaded and is empty, and no role preference is
// stored. A failed fetch is returned so the caller can retry instead.
func (r *Resolver) EnrollmentRequired(ctx context.Context) (bool, error) {
	list, err := r.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load tenant list: %w", err)
	}
	if len(list) > 0 {
		return false, nil
	}

	pref, err := r.vault.RolePreference(ctx)
	if err != nil {
		return false, err
	}
	return pref == "", nil
}
