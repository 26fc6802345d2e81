package redis

import (
	"fmt"
	"strings"

	"github.com/mcoot/marketid/internal/model"
)

// keys builds Redis keys under a common prefix
type keys struct {
	prefix string
}

// account returns the key for an Account
func (k keys) account(id model.PrincipalID) string {
	return fmt.Sprintf("%s:account:%s", k.prefix, id)
}

// emailIndex returns the key for the email -> principal_id index
func (k keys) emailIndex(email string) string {
	return fmt.Sprintf("%s:idx:email:%s", k.prefix, strings.ToLower(strings.TrimSpace(email)))
}

// profile returns the key for a Profile
func (k keys) profile(id model.PrincipalID) string {
	return fmt.Sprintf("%s:profile:%s", k.prefix, id)
}

// storeByOwner returns the key for the StoreRecord owned by a principal
func (k keys) storeByOwner(ownerID model.PrincipalID) string {
	return fmt.Sprintf("%s:store:owner:%s", k.prefix, ownerID)
}
