package response

import (
	"time"

	"github.com/mcoot/marketid/internal/model"
)

// StoreResponse represents a store record in API responses
type StoreResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IdentityResponse represents a resolved identity in API responses
type IdentityResponse struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	Name       string         `json:"name"`
	Role       string         `json:"role"`
	TokenRole  string         `json:"token_role,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Store      *StoreResponse `json:"store,omitempty"`
	ResolvedAt time.Time      `json:"resolved_at"`
}

// AuthResponse is returned by login and register. ClientID is the bearer
// token for subsequent requests.
type AuthResponse struct {
	ClientID string            `json:"client_id"`
	Identity *IdentityResponse `json:"identity"`
}

// MeResponse describes the caller's session
type MeResponse struct {
	State    string            `json:"state"`
	Identity *IdentityResponse `json:"identity"`
}

// PermissionResponse answers a capability check
type PermissionResponse struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	State      string `json:"state"`
}

// CheckResponse reports the outcome of a session check
type CheckResponse struct {
	// Ran is false when the check was skipped by the cooldown or an
	// in-flight check
	Ran      bool              `json:"ran"`
	State    string            `json:"state"`
	Identity *IdentityResponse `json:"identity"`
}

// SignalResponse acknowledges a lifecycle signal
type SignalResponse struct {
	Signal    string `json:"signal"`
	Scheduled bool   `json:"scheduled"`
}

// ProfileResponse represents a profile in admin responses
type ProfileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreFromModel converts a model.StoreRecord to a StoreResponse
func StoreFromModel(s *model.StoreRecord) *StoreResponse {
	if s == nil {
		return nil
	}
	return &StoreResponse{
		ID:          string(s.ID),
		Name:        s.Name,
		Description: s.Description,
		Fields:      s.Fields,
		CreatedAt:   s.CreatedAt,
	}
}

// IdentityFromModel converts a model.ResolvedIdentity to an IdentityResponse
func IdentityFromModel(id *model.ResolvedIdentity) *IdentityResponse {
	if id == nil {
		return nil
	}
	return &IdentityResponse{
		ID:         string(id.ID),
		Email:      id.Email,
		Name:       id.Name,
		Role:       string(id.Role),
		TokenRole:  string(id.TokenRole),
		Metadata:   id.Metadata,
		Fields:     id.Fields,
		Store:      StoreFromModel(id.Store),
		ResolvedAt: id.ResolvedAt,
	}
}

// ProfileFromModel converts a model.Profile to a ProfileResponse
func ProfileFromModel(p *model.Profile) *ProfileResponse {
	return &ProfileResponse{
		ID:        string(p.ID),
		Name:      p.Name,
		Role:      string(p.Role),
		UpdatedAt: p.UpdatedAt,
	}
}
