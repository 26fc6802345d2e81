package model

import "time"

// Account holds the credentials the authentication backend checks at sign-in.
// Stored separately from the profile so password hashes never reach an identity.
type Account struct {
	PrincipalID  PrincipalID    `json:"principal_id"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"password_hash"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Principal returns the principal this account authenticates as
func (a *Account) Principal() *Principal {
	return &Principal{
		ID:       a.PrincipalID,
		Email:    a.Email,
		Metadata: cloneMap(a.Metadata),
	}
}

// Profile is the mutable, persisted record keyed by principal ID
type Profile struct {
	ID        PrincipalID    `json:"id"`
	Name      string         `json:"name"`
	Role      Role           `json:"role,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StoreID uniquely identifies a store record
type StoreID string

// StoreRecord is the business entity owned by a principal with role store
type StoreRecord struct {
	ID          StoreID        `json:"id"`
	OwnerID     PrincipalID    `json:"owner_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Clone returns a deep copy of the store record
func (s *StoreRecord) Clone() *StoreRecord {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = cloneMap(s.Fields)
	return &c
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Fields = cloneMap(p.Fields)
	return &c
}

// Clone returns a deep copy of the account
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Metadata = cloneMap(a.Metadata)
	return &c
}
