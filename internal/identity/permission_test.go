package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/marketid/internal/model"
)

func TestHasPermission(t *testing.T) {
	roles := map[string]*model.ResolvedIdentity{
		"none":  nil,
		"user":  {ID: "u", Role: model.RoleUser},
		"store": {ID: "s", Role: model.RoleStore},
		"admin": {ID: "a", Role: model.RoleAdmin},
	}

	tests := []struct {
		capability model.Capability
		allowed    map[string]bool
	}{
		{model.CapabilityAnyAuth, map[string]bool{"user": true, "store": true, "admin": true}},
		{model.CapabilityAdmin, map[string]bool{"admin": true}},
		{model.CapabilityStore, map[string]bool{"store": true, "admin": true}},
		{model.CapabilityStoreOwner, map[string]bool{"store": true, "admin": true}},
		{model.CapabilityUser, map[string]bool{"user": true, "admin": true}},
		{model.Capability("billing"), map[string]bool{"admin": true}},
	}

	for _, tt := range tests {
		for name, identity := range roles {
			t.Run(string(tt.capability)+"/"+name, func(t *testing.T) {
				assert.Equal(t, tt.allowed[name], HasPermission(identity, tt.capability))
			})
		}
	}
}

func TestHasPermissionUnknownCapabilityDeniedForNonAdmin(t *testing.T) {
	identity := &model.ResolvedIdentity{ID: "u", Role: model.RoleStore}
	assert.False(t, HasPermission(identity, ""))
	assert.False(t, HasPermission(identity, "moderator"))
}
