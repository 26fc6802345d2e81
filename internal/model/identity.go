package model

import "time"

// Role is the marketplace tier a principal belongs to
type Role string

const (
	RoleUser  Role = "user"
	RoleStore Role = "store"
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleStore, RoleAdmin:
		return true
	}
	return false
}

// ParseRole returns the role named by s, or false if s is not a known role
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if !r.IsValid() {
		return "", false
	}
	return r, true
}

// Capability is a requirement a route or action places on the identity
type Capability string

const (
	CapabilityAnyAuth    Capability = "any_auth"
	CapabilityAdmin      Capability = "admin"
	CapabilityStore      Capability = "store"
	CapabilityStoreOwner Capability = "store_owner"
	CapabilityUser       Capability = "user"
)

// SessionState is the lifecycle position of the identity engine
type SessionState string

const (
	SessionUnknown   SessionState = "unknown"
	SessionAnonymous SessionState = "anonymous"
	SessionResolving SessionState = "resolving"
	SessionResolved  SessionState = "resolved"
)

// Settled reports whether a route decision can be made in this state
func (s SessionState) Settled() bool {
	return s == SessionAnonymous || s == SessionResolved
}

// ResolvedIdentity is the composite identity consumed by the rest of the application:
// principal fields overlaid by profile fields, with the role resolved from the profile
// when it has one.
type ResolvedIdentity struct {
	ID       PrincipalID    `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Name     string         `json:"name"`
	Role     Role           `json:"role"`
	// TokenRole is the role claimed by the authentication backend at sign-in
	TokenRole  Role           `json:"token_role,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Store      *StoreRecord   `json:"store_info"`
	ResolvedAt time.Time      `json:"resolved_at"`
}

// RoleDrift reports whether the persisted profile role disagrees with the token claim
func (id *ResolvedIdentity) RoleDrift() bool {
	return id != nil && id.TokenRole != "" && id.TokenRole != id.Role
}

// Clone returns a deep copy so readers cannot mutate shared state
func (id *ResolvedIdentity) Clone() *ResolvedIdentity {
	if id == nil {
		return nil
	}
	c := *id
	c.Metadata = cloneMap(id.Metadata)
	c.Fields = cloneMap(id.Fields)
	c.Store = id.Store.Clone()
	return &c
}
