package backup

import (
	"context"

	"github.com/mcoot/marketid/internal/model"
)

// IdentityKeyPrefix namespaces identity snapshots in the backup
const IdentityKeyPrefix = "identity:"

// IdentityBackup keeps the last resolved identity of one client
type IdentityBackup struct {
	backup *Backup
	key    string
}

// ForClient returns the identity backup slot for clientID
func (b *Backup) ForClient(clientID string) *IdentityBackup {
	return &IdentityBackup{backup: b, key: IdentityKeyPrefix + clientID}
}

// Save stores a snapshot of identity
func (ib *IdentityBackup) Save(ctx context.Context, identity *model.ResolvedIdentity) error {
	if identity == nil {
		return ib.Clear(ctx)
	}
	return ib.backup.Set(ctx, ib.key, identity)
}

// Load returns the saved identity, or nil if there is none or it is stale
func (ib *IdentityBackup) Load(ctx context.Context) *model.ResolvedIdentity {
	return Load[*model.ResolvedIdentity](ctx, ib.backup, ib.key, nil)
}

// Clear removes the saved identity
func (ib *IdentityBackup) Clear(ctx context.Context) error {
	return ib.backup.Delete(ctx, ib.key)
}
