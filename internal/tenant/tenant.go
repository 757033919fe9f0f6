// Package tenant resolves and switches the active barbershop for API calls.
package tenant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role markers returned by the backend in owner_role
const (
	OwnerRoleAdmin  = "Admin"
	OwnerRoleOwner  = "Owner"
	OwnerRoleBarber = "Barber"
)

// Role is the caller's derived role for the active tenant
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleBarber   Role = "barber"
	RoleCustomer Role = "customer"
)

// ID is a tenant identifier. The backend sends numbers; persisted values
// and headers are strings. Both decode to the same ID.
type ID string

// UnmarshalJSON accepts a JSON number, string or null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("tenant id: %w", err)
		}
		*id = ID(normalizeNumber(n.String()))
	}
	return nil
}

// normalizeNumber renders 7.0 as "7" so numeric ids compare equal
func normalizeNumber(s string) string {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// String returns the header/persisted form
func (id ID) String() string {
	return string(id)
}

// Tenant is a barbershop the caller administers or works at
type Tenant struct {
	ID                 ID     `json:"id"`
	Name               string `json:"name"`
	Slug               string `json:"slug,omitempty"`
	Subdomain          string `json:"subdomain,omitempty"`
	OwnerRole          string `json:"owner_role,omitempty"`
	SubscriptionStatus string `json:"subscription_status,omitempty"`
	IsActive           bool   `json:"is_active"`
}

// ownerMarker reports whether the role marks the caller as the shop owner.
// The backend reports "Admin" for owners without a staff row.
func ownerMarker(role string) bool {
	return role == OwnerRoleAdmin || role == OwnerRoleOwner
}

// staffRole maps a staff role field to a derived role
func staffRole(role string) Role {
	switch role {
	case OwnerRoleAdmin:
		return RoleAdmin
	case OwnerRoleBarber:
		return RoleBarber
	default:
		return RoleCustomer
	}
}

func find(list []Tenant, id ID) (Tenant, bool) {
	for _, t := range list {
		if t.ID == id {
			return t, true
		}
	}
	return Tenant{}, false
}
