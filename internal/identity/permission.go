package identity

import "github.com/mcoot/marketid/internal/model"

// HasPermission reports whether identity satisfies capability.
// Admins pass every check; anyone else is denied a capability not listed here.
func HasPermission(identity *model.ResolvedIdentity, capability model.Capability) bool {
	if identity == nil {
		return false
	}
	if capability == model.CapabilityAnyAuth {
		return true
	}
	if identity.Role == model.RoleAdmin {
		return true
	}

	switch capability {
	case model.CapabilityAdmin:
		return false
	case model.CapabilityStore, model.CapabilityStoreOwner:
		return identity.Role == model.RoleStore
	case model.CapabilityUser:
		return identity.Role == model.RoleUser
	default:
		return false
	}
}
