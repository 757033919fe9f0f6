package credstore

import (
	"context"
	"sync"
	"testing"
)

func TestVault_SetTokensAndCredentials(t *testing.T) {
	ctx := context.Background()
	v := NewVault(NewMemoryStore())

	creds, err := v.Credentials(ctx)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if !creds.Anonymous() {
		t.Errorf("expected anonymous credentials on empty store, got %+v", creds)
	}

	if err := v.SetTokens(ctx, "access-1", "refresh-1"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if err := v.SetActiveTenantID(ctx, "7"); err != nil {
		t.Fatalf("SetActiveTenantID: %v", err)
	}

	creds, err = v.Credentials(ctx)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.AccessToken != "access-1" || creds.RefreshToken != "refresh-1" || creds.TenantID != "7" {
		t.Errorf("unexpected credentials: %+v", creds)
	}

	// Empty refresh keeps the stored one
	if err := v.SetTokens(ctx, "access-2", ""); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	creds, _ = v.Credentials(ctx)
	if creds.AccessToken != "access-2" || creds.RefreshToken != "refresh-1" {
		t.Errorf("unexpected credentials after partial update: %+v", creds)
	}
}

func TestVault_SwapAccessToken(t *testing.T) {
	ctx := context.Background()
	v := NewVault(NewMemoryStore())
	_ = v.SetTokens(ctx, "old", "r")

	got, err := v.SwapAccessToken(ctx, "old", "new")
	if err != nil {
		t.Fatalf("SwapAccessToken: %v", err)
	}
	if got != "new" {
		t.Errorf("expected new token, got %q", got)
	}

	// Stale swap does not overwrite
	got, err = v.SwapAccessToken(ctx, "old", "newer")
	if err != nil {
		t.Fatalf("SwapAccessToken: %v", err)
	}
	if got != "new" {
		t.Errorf("expected current token to win, got %q", got)
	}

	// Logout between refresh start and finish wins
	_ = v.Clear(ctx)
	got, _ = v.SwapAccessToken(ctx, "new", "late")
	if got != "" {
		t.Errorf("expected cleared token to stay cleared, got %q", got)
	}
}

func TestVault_ClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	v := NewVault(store)

	_ = v.SetTokens(ctx, "a", "r")
	_ = v.SetActiveTenantID(ctx, "3")
	_ = v.SetRolePreference(ctx, "owner")
	_ = v.SetPendingInvite(ctx, "invite")
	_ = v.SetCustomer(ctx, Customer{ID: "c1", Name: "Abebe"})

	if store.Len() != len(AllKeys) {
		t.Fatalf("expected %d entries, got %d", len(AllKeys), store.Len())
	}

	if err := v.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store after Clear, got %d entries", store.Len())
	}
}

func TestVault_CustomerRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := NewVault(NewMemoryStore())

	c, err := v.Customer(ctx)
	if err != nil || c != nil {
		t.Fatalf("expected no customer, got %+v err=%v", c, err)
	}

	_ = v.SetCustomer(ctx, Customer{ID: "42", Name: "Sara", Email: "sara@example.com"})
	c, err = v.Customer(ctx)
	if err != nil {
		t.Fatalf("Customer: %v", err)
	}
	if c.ID != "42" || c.Email != "sara@example.com" {
		t.Errorf("unexpected customer: %+v", c)
	}
}

func TestVault_SetActiveTenantEmptyRemoves(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	v := NewVault(store)

	_ = v.SetActiveTenantID(ctx, "9")
	_ = v.SetActiveTenantID(ctx, "")

	if _, ok, _ := store.Get(ctx, KeyActiveTenant); ok {
		t.Error("expected active tenant key to be removed")
	}
}

func TestVault_ConcurrentPairNeverTorn(t *testing.T) {
	ctx := context.Background()
	v := NewVault(NewMemoryStore())
	_ = v.SetTokens(ctx, "a0", "r0")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = v.SetTokens(ctx, "a1", "r1")
		}()
		go func() {
			defer wg.Done()
			c, err := v.Credentials(ctx)
			if err != nil {
				t.Errorf("Credentials: %v", err)
				return
			}
			if (c.AccessToken == "a0") != (c.RefreshToken == "r0") {
				t.Errorf("observed torn pair: %+v", c)
			}
		}()
	}
	wg.Wait()
}
