package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/shopbook/internal/apiclient"
	"github.com/erauner12/shopbook/internal/credstore"
)

// fakePipeline serves a fixed my-shops body and records the tenant header
type fakePipeline struct {
	mu      sync.Mutex
	body    string
	err     error
	calls   int
	tenant  string
	started chan struct{}
	release chan struct{}
}

func (f *fakePipeline) Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error) {
	f.mu.Lock()
	f.calls++
	body, err := f.body, f.err
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &apiclient.Response{StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakePipeline) SetTenant(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenant = id
}

func (f *fakePipeline) header() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tenant
}

const twoShops = `{"success":true,"barbershops":[
	{"id":7,"name":"Fade Factory","owner_role":"Admin","subscription_status":"active","is_active":true},
	{"id":9,"name":"Clip Joint","owner_role":"Barber","subscription_status":"trial","is_active":true}
]}`

func newResolver(t *testing.T, body, token, stored string) (*Resolver, *fakePipeline, *credstore.Vault) {
	t.Helper()
	ctx := context.Background()
	vault := credstore.NewVault(credstore.NewMemoryStore())
	require.NoError(t, vault.SetTokens(ctx, token, "R1"))
	require.NoError(t, vault.SetActiveTenantID(ctx, stored))

	api := &fakePipeline{body: body}
	return NewResolver(api, vault), api, vault
}

func TestRestore_PersistedTenantFound(t *testing.T) {
	r, api, vault := newResolver(t, twoShops, "A1", "7")

	active, err := r.Restore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, active)

	assert.Equal(t, ID("7"), active.ID)
	assert.Equal(t, "Fade Factory", active.Name)
	assert.Equal(t, "7", api.header())

	stored, _ := vault.ActiveTenantID(context.Background())
	assert.Equal(t, "7", stored)
}

func TestRestore_PersistedTenantMissingIsPurged(t *testing.T) {
	r, api, vault := newResolver(t, twoShops, "A1", "3")
	api.SetTenant("3")

	active, err := r.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Equal(t, "", api.header())

	stored, _ := vault.ActiveTenantID(context.Background())
	assert.Equal(t, "", stored, "persisted id should be cleared")
}

func TestRestore_Idempotent(t *testing.T) {
	r, _, _ := newResolver(t, twoShops, "A1", "9")

	first, err := r.Restore(context.Background())
	require.NoError(t, err)
	second, err := r.Restore(context.Background())
	require.NoError(t, err)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestRestore_SingleTenantAutoSelected(t *testing.T) {
	r, api, vault := newResolver(t, `{"barbershops":[{"id":"12","name":"Solo Cuts","owner_role":"Admin"}]}`, "A1", "")

	active, err := r.Restore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, active)

	assert.Equal(t, ID("12"), active.ID)
	assert.Equal(t, "12", api.header())
	stored, _ := vault.ActiveTenantID(context.Background())
	assert.Equal(t, "12", stored)
}

func TestRestore_MultipleTenantsNoChoice(t *testing.T) {
	r, api, _ := newResolver(t, twoShops, "A1", "")

	active, err := r.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Equal(t, "", api.header())
	assert.Len(t, r.Tenants(), 2)
}

func TestRestore_FetchFailureDoesNotPurge(t *testing.T) {
	r, api, vault := newResolver(t, "", "A1", "7")
	api.err = apiclient.ErrNetwork{Err: errors.New("connection refused")}

	active, err := r.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, active)

	stored, _ := vault.ActiveTenantID(context.Background())
	assert.Equal(t, "7", stored, "a network blip must not purge the persisted choice")
}

func TestRestore_EmptyListPurgesPersistedID(t *testing.T) {
	r, api, vault := newResolver(t, `{"barbershops":[]}`, "A1", "7")
	api.SetTenant("7")

	active, err := r.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Equal(t, "", api.header())

	stored, _ := vault.ActiveTenantID(context.Background())
	assert.Equal(t, "", stored, "an empty list from the server clears the persisted id")
}

func TestRestore_NoTokenSkipsFetch(t *testing.T) {
	r, api, _ := newResolver(t, twoShops, "", "7")
	api.SetTenant("7")

	active, err := r.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Equal(t, 0, api.calls)
	assert.Equal(t, "", api.header())
}

func TestRestore_SupersededBySetActive(t *testing.T) {
	r, api, _ := newResolver(t, twoShops, "A1", "7")
	api.started = make(chan struct{})
	api.release = make(chan struct{})

	done := make(chan *Tenant, 1)
	go func() {
		active, _ := r.Restore(context.Background())
		done <- active
	}()

	<-api.started

	_, err := r.SetActive(context.Background(), "9")
	require.NoError(t, err)
	close(api.release)

	select {
	case active := <-done:
		require.NotNil(t, active)
		assert.Equal(t, ID("9"), active.ID, "late restore must not override the explicit switch")
	case <-time.After(2 * time.Second):
		t.Fatal("restore did not finish")
	}
	assert.Equal(t, "9", api.header())
}

func TestSetActive(t *testing.T) {
	r, api, vault := newResolver(t, twoShops, "A1", "")
	ctx := context.Background()
	_, err := r.Load(ctx)
	require.NoError(t, err)

	active, err := r.SetActive(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, "Clip Joint", active.Name, "known tenant keeps its attributes")
	assert.Equal(t, "9", api.header())

	active, err = r.SetActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, ID("42"), active.ID)
	assert.Empty(t, active.Name)
	stored, _ := vault.ActiveTenantID(ctx)
	assert.Equal(t, "42", stored)

	active, err = r.SetActive(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Equal(t, "", api.header())
	stored, _ = vault.ActiveTenantID(ctx)
	assert.Equal(t, "", stored)
}

func TestRole(t *testing.T) {
	r, _, _ := newResolver(t, twoShops, "A1", "")
	ctx := context.Background()
	_, err := r.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, RoleCustomer, r.Role())

	_, err = r.SetActive(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, r.Role())
	assert.True(t, r.IsOwner())

	_, err = r.SetActive(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, RoleBarber, r.Role())
	assert.False(t, r.IsOwner())

	_, err = r.SetActive(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, r.Role())
}

func TestSuspension(t *testing.T) {
	r, _, vault := newResolver(t, twoShops, "A1", "7")
	ctx := context.Background()
	_, err := r.Restore(ctx)
	require.NoError(t, err)

	r.OnSuspended("Subscription expired")
	detail, ok := r.Suspended()
	assert.True(t, ok)
	assert.Equal(t, "Subscription expired", detail)

	token, _ := vault.AccessToken(ctx)
	assert.Equal(t, "A1", token)
	assert.NotNil(t, r.Active())

	_, err = r.SetActive(ctx, "9")
	require.NoError(t, err)
	_, ok = r.Suspended()
	assert.False(t, ok, "switching clears the notice")
}

func TestReset(t *testing.T) {
	r, api, _ := newResolver(t, twoShops, "A1", "7")
	_, err := r.Restore(context.Background())
	require.NoError(t, err)

	r.Reset()
	assert.Nil(t, r.Active())
	assert.Empty(t, r.Tenants())
	assert.Equal(t, "", api.header())
}

func TestEnrollmentRequired(t *testing.T) {
	ctx := context.Background()

	r, _, vault := newResolver(t, `{"barbershops":[]}`, "A1", "")
	required, err := r.EnrollmentRequired(ctx)
	require.NoError(t, err)
	assert.True(t, required)

	require.NoError(t, vault.SetRolePreference(ctx, "customer"))
	required, err = r.EnrollmentRequired(ctx)
	require.NoError(t, err)
	assert.False(t, required)

	r, _, _ = newResolver(t, twoShops, "A1", "")
	required, err = r.EnrollmentRequired(ctx)
	require.NoError(t, err)
	assert.False(t, required)

	r, api, _ := newResolver(t, "", "A1", "")
	api.err = apiclient.ErrNetwork{Err: errors.New("timeout")}
	_, err = r.EnrollmentRequired(ctx)
	assert.True(t, apiclient.IsNetwork(err))
}

func TestIDUnmarshal(t *testing.T) {
	var got []ID
	require.NoError(t, json.Unmarshal([]byte(`[7, "7", 7.0, " 8 ", null]`), &got))
	assert.Equal(t, []ID{"7", "7", "7", "8", ""}, got)
}

func TestIDUnmarshal_LargeNumberKeepsDigits(t *testing.T) {
	var got ID
	require.NoError(t, json.Unmarshal([]byte(`9007199254740993`), &got))
	assert.Equal(t, ID("9007199254740993"), got)

	list := []Tenant{{ID: got, Name: "Big Shop"}}
	_, ok := find(list, ID("9007199254740993"))
	assert.True(t, ok)
}
