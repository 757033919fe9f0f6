// Package app wires the credential vault, request pipeline, session, tenant
// and booking components into one handle per app instance.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/erauner12/shopbook/internal/account"
	"github.com/erauner12/shopbook/internal/apiclient"
	"github.com/erauner12/shopbook/internal/booking"
	"github.com/erauner12/shopbook/internal/config"
	"github.com/erauner12/shopbook/internal/credstore"
	"github.com/erauner12/shopbook/internal/session"
	"github.com/erauner12/shopbook/internal/tenant"
)

// App is the single owned context handle. Components are exported for
// callers that need them directly.
type App struct {
	Vault        *credstore.Vault
	API          *apiclient.Client
	Session      *session.Manager
	Account      *account.Service
	Tenants      *tenant.Resolver
	Bookings     *booking.Service
	Availability *booking.Availability
}

// Option configures New
type Option func(*options)

type options struct {
	identity oauth2.TokenSource
}

// WithIdentity runs the session manager in external-identity mode
func WithIdentity(src oauth2.TokenSource) Option {
	return func(o *options) {
		o.identity = src
	}
}

// New wires an App over store
func New(cfg *config.Config, store credstore.Store, opts ...Option) *App {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Vault: credstore.NewVault(store)}

	a.API = apiclient.New(apiclient.Config{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout,
		RefreshPath: cfg.API.RefreshPath,
		RateLimit:   cfg.API.RateLimit,
		RateBurst:   cfg.API.RateBurst,
	}, a.Vault, a)

	var sessionOpts []session.Option
	if o.identity != nil {
		sessionOpts = append(sessionOpts, session.WithIdentity(o.identity))
	}
	a.Session = session.New(a.Vault, sessionOpts...)

	a.Account = account.NewService(a.API, a.Vault, a.Session)
	a.Tenants = tenant.NewResolver(a.API, a.Vault)
	a.Bookings = booking.NewService(a.API, booking.NewHTTPPayments(a.API), booking.Config{
		AutoRetries: cfg.Booking.AutoRetries,
	})
	a.Availability = booking.NewAvailability(a.API)

	return a
}

// OnUnauthorized implements apiclient.Hooks. Credentials are already cleared.
func (a *App) OnUnauthorized(reason string) {
	a.Session.OnUnauthorized(reason)
	a.Tenants.Reset()
}

// OnTenantSuspended implements apiclient.Hooks
func (a *App) OnTenantSuspended(detail string) {
	a.Tenants.OnSuspended(detail)
}

// Start checks the session and, when authenticated, restores the active tenant
func (a *App) Start(ctx context.Context) (session.State, error) {
	state, err := a.Session.Check(ctx)
	if err != nil {
		return state, err
	}
	if !state.Authenticated {
		a.Tenants.Reset()
		return state, nil
	}

	active, err := a.Tenants.Restore(ctx)
	if err != nil {
		return state, fmt.Errorf("restore tenant: %w", err)
	}

	ev := log.Info().Bool("authenticated", true)
	if active != nil {
		ev = ev.Str("tenantId", active.ID.String())
	}
	ev.Msg("app started")
	return a.Session.State(), nil
}

// Login signs in and restores tenant context
func (a *App) Login(ctx context.Context, username, password string) (*credstore.Customer, error) {
	customer, err := a.Account.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if _, err := a.Tenants.Restore(ctx); err != nil {
		return customer, fmt.Errorf("restore tenant: %w", err)
	}
	return customer, nil
}

// Logout clears all credentials and tenant state
func (a *App) Logout(ctx context.Context) error {
	if err := a.Account.Logout(ctx); err != nil {
		return err
	}
	a.Tenants.Reset()
	return nil
}

// CustomerID returns the stored customer's id ("" when unknown)
func (a *App) CustomerID(ctx context.Context) (string, error) {
	c, err := a.Vault.Customer(ctx)
	if err != nil || c == nil {
		return "", err
	}
	return c.ID, nil
}
