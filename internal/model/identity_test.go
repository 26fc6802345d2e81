package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"user", RoleUser, true},
		{"store", RoleStore, true},
		{"admin", RoleAdmin, true},
		{"root", "", false},
		{"Admin", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestRoleDriftIgnoresMissingClaim(t *testing.T) {
	assert.False(t, (&ResolvedIdentity{Role: RoleStore}).RoleDrift())
	assert.True(t, (&ResolvedIdentity{Role: RoleStore, TokenRole: RoleUser}).RoleDrift())
	assert.False(t, (*ResolvedIdentity)(nil).RoleDrift())
}
