package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/shopbook/internal/apiclient"
	"github.com/erauner12/shopbook/internal/booking"
	"github.com/erauner12/shopbook/internal/config"
	"github.com/erauner12/shopbook/internal/credstore"
	"github.com/erauner12/shopbook/internal/devserver"
	"github.com/erauner12/shopbook/internal/tenant"
)

type harness struct {
	dev   *devserver.Server
	cfg   *config.Config
	store *credstore.MemoryStore
}

func newHarness(t *testing.T, env map[string]string) *harness {
	t.Helper()

	dev := devserver.New(devserver.Config{JWTSecret: "test-secret", TokenTTL: time.Minute})
	ts := httptest.NewServer(dev.Routes())
	t.Cleanup(ts.Close)

	vars := map[string]string{
		"API_BASE_URL": ts.URL + "/api",
		"HTTP_TIMEOUT": "2s",
	}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.Process(context.Background(), envconfig.MapLookuper(vars))
	require.NoError(t, err)

	return &harness{dev: dev, cfg: cfg, store: credstore.NewMemoryStore()}
}

// app returns a new App over the harness store, as if the process restarted
func (h *harness) app() *App {
	return New(h.cfg, h.store)
}

func (h *harness) login(t *testing.T, username string) *App {
	t.Helper()
	a := h.app()
	_, err := a.Login(context.Background(), username, devserver.SeedPassword)
	require.NoError(t, err)
	return a
}

func tomorrowAt(hour int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func haircutForm(at time.Time) *booking.Form {
	f := booking.NewForm()
	f.Update(func(s *booking.Selection) {
		s.ServiceID = devserver.ServiceHaircut
		s.ServiceName = "Haircut"
		s.Price = 25
		s.BarberID = devserver.SeedBarberID
		s.Date = at.Format(time.DateOnly)
		s.Time = at
	})
	return f
}

func TestStart_Anonymous(t *testing.T) {
	h := newHarness(t, nil)
	a := h.app()

	state, err := a.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Checked)
	assert.False(t, state.Authenticated)
	assert.Nil(t, a.Tenants.Active())
}

func TestLogin_MultipleShopsSelectsNone(t *testing.T) {
	h := newHarness(t, nil)
	a := h.login(t, devserver.SeedOwnerUsername)

	assert.True(t, a.Session.Authenticated())
	assert.Len(t, a.Tenants.Tenants(), 3)
	assert.Nil(t, a.Tenants.Active())
	assert.Equal(t, "", a.API.Tenant())

	id, err := a.CustomerID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, devserver.SeedOwnerID, id)
}

func TestLogin_SingleShopAutoSelected(t *testing.T) {
	h := newHarness(t, nil)
	a := h.login(t, devserver.SeedBarberUsername)

	active := a.Tenants.Active()
	require.NotNil(t, active)
	assert.Equal(t, "9", active.ID.String())
	assert.Equal(t, tenant.RoleBarber, a.Tenants.Role())
	assert.Equal(t, "9", a.API.Tenant())
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t, nil)
	a := h.app()

	_, err := a.Login(context.Background(), devserver.SeedOwnerUsername, "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", apiclient.ErrorMessage(err, ""))
	assert.False(t, a.Session.Authenticated())
}

func TestStart_RestoresPersistedTenant(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first := h.login(t, devserver.SeedOwnerUsername)
	_, err := first.Tenants.SetActive(ctx, "7")
	require.NoError(t, err)
	assert.True(t, first.Tenants.IsOwner())

	second := h.app()
	state, err := second.Start(ctx)
	require.NoError(t, err)
	assert.True(t, state.Authenticated)

	active := second.Tenants.Active()
	require.NotNil(t, active)
	assert.Equal(t, "7", active.ID.String())
	assert.Equal(t, "Fade Factory", active.Name)
	assert.Equal(t, tenant.RoleOwner, second.Tenants.Role())
	assert.Equal(t, "7", second.API.Tenant())
}

func TestStart_PurgesUnknownTenant(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.login(t, devserver.SeedOwnerUsername)
	vault := credstore.NewVault(h.store)
	require.NoError(t, vault.SetActiveTenantID(ctx, "3"))

	a := h.app()
	_, err := a.Start(ctx)
	require.NoError(t, err)

	assert.Nil(t, a.Tenants.Active())
	stored, err := vault.ActiveTenantID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", stored)
}

func TestExpiredAccessToken_RefreshedTransparently(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.login(t, devserver.SeedOwnerUsername)

	expired, err := h.dev.IssueAccessToken(devserver.SeedOwnerID, -time.Minute)
	require.NoError(t, err)
	require.NoError(t, a.Vault.SetTokens(ctx, expired, ""))

	list, err := a.Tenants.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	current, err := a.Vault.AccessToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, expired, current)
	assert.True(t, a.Session.Authenticated())
}

func TestRevokedRefreshToken_ForcesLogout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.login(t, devserver.SeedBarberUsername)
	require.NotNil(t, a.Tenants.Active())

	expired, err := h.dev.IssueAccessToken(devserver.SeedBarberID, -time.Minute)
	require.NoError(t, err)
	require.NoError(t, a.Vault.SetTokens(ctx, expired, ""))
	h.dev.RevokeRefreshTokens(devserver.SeedBarberID)

	_, err = a.Tenants.Load(ctx)
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))

	assert.False(t, a.Session.Authenticated())
	assert.Equal(t, apiclient.SessionExpiredReason, a.Session.ConsumeReason())
	assert.Nil(t, a.Tenants.Active())
	assert.Equal(t, "", a.API.Tenant())

	creds, err := a.Vault.Credentials(ctx)
	require.NoError(t, err)
	assert.True(t, creds.Anonymous())
	assert.Equal(t, 0, h.store.Len())
}

func TestBooking_CashConfirmation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.login(t, devserver.SeedCustomerUsername)
	customerID, err := a.CustomerID(ctx)
	require.NoError(t, err)

	at := tomorrowAt(10)
	out, err := a.Bookings.Submit(ctx, haircutForm(at), customerID, booking.MethodCash)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Booking.ID)
	assert.Equal(t, booking.StepConfirmation, out.Next)
	assert.Equal(t, booking.PaymentStatusCash, out.Booking.PaymentStatus)

	slots, err := a.Availability.Fetch(ctx, devserver.SeedBarberID, at.Format(time.DateOnly))
	require.NoError(t, err)
	assert.Len(t, slots, 15)
	for _, s := range slots {
		assert.False(t, s.Start.Equal(at), "booked slot still listed")
	}
}

func TestBooking_OnlineInitiatesPayment(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.login(t, devserver.SeedCustomerUsername)
	customerID, err := a.CustomerID(ctx)
	require.NoError(t, err)

	out, err := a.Bookings.Submit(ctx, haircutForm(tomorrowAt(11)), customerID, booking.MethodOnline)
	require.NoError(t, err)
	assert.Equal(t, booking.StepPayment, out.Next)
	require.NotNil(t, out.Checkout)
	assert.NotEmpty(t, out.Checkout.ClientSecret)
	assert.NotEmpty(t, out.Checkout.URL)
}

func TestBooking_SlotTakenByAnotherCustomer(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	kim := h.login(t, devserver.SeedCustomerUsername)
	kimID, err := kim.CustomerID(ctx)
	require.NoError(t, err)

	at := tomorrowAt(14)
	_, err = kim.Bookings.Submit(ctx, haircutForm(at), kimID, booking.MethodCash)
	require.NoError(t, err)

	// Second customer on the same backend
	anaStore := credstore.NewMemoryStore()
	ana := New(h.cfg, anaStore)
	_, err = ana.Login(ctx, devserver.SeedOwnerUsername, devserver.SeedPassword)
	require.NoError(t, err)
	anaID, err := ana.CustomerID(ctx)
	require.NoError(t, err)

	form := haircutForm(at)
	_, err = ana.Bookings.Submit(ctx, form, anaID, booking.MethodCash)
	require.Error(t, err)
	assert.True(t, booking.IsSlotTaken(err))
	assert.Equal(t, booking.SlotTakenMessage, booking.Message(err))

	sel := form.Selection()
	assert.True(t, sel.Time.IsZero())
	assert.Equal(t, devserver.SeedBarberID, sel.BarberID)
	assert.NotEmpty(t, form.Key())
	assert.Equal(t, 1, h.dev.BookingCount())
}

func TestBooking_NoResponseRetriedWithSameKey(t *testing.T) {
	h := newHarness(t, map[string]string{"HTTP_TIMEOUT": "300ms"})
	ctx := context.Background()
	a := h.login(t, devserver.SeedCustomerUsername)
	customerID, err := a.CustomerID(ctx)
	require.NoError(t, err)

	h.dev.FailNext("/booking/create", devserver.Fault{Delay: time.Second})

	out, err := a.Bookings.Submit(ctx, haircutForm(tomorrowAt(15)), customerID, booking.MethodCash)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Booking.ID)
	assert.Equal(t, 1, h.dev.BookingCount())
}

func TestBooking_SuspendedTenant(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.login(t, devserver.SeedOwnerUsername)
	customerID, err := a.CustomerID(ctx)
	require.NoError(t, err)

	_, err = a.Tenants.SetActive(ctx, "12")
	require.NoError(t, err)

	_, err = a.Bookings.Submit(ctx, haircutForm(tomorrowAt(16)), customerID, booking.MethodCash)
	require.Error(t, err)
	assert.True(t, apiclient.IsTenantSuspended(err))

	detail, suspended := a.Tenants.Suspended()
	assert.True(t, suspended)
	assert.Equal(t, apiclient.SubscriptionExpiredDetail, detail)

	// Suspension never logs out
	assert.True(t, a.Session.Authenticated())
	creds, err := a.Vault.Credentials(ctx)
	require.NoError(t, err)
	assert.False(t, creds.Anonymous())

	// The other tenants stay reachable
	list, err := a.Tenants.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestLogout_ClearsEverything(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.login(t, devserver.SeedBarberUsername)
	require.NoError(t, a.Vault.SetPendingInvite(ctx, "invite-1"))

	require.NoError(t, a.Logout(ctx))

	assert.False(t, a.Session.Authenticated())
	assert.Nil(t, a.Tenants.Active())
	assert.Equal(t, "", a.API.Tenant())
	assert.Equal(t, 0, h.store.Len())
}
