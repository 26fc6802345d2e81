package backup

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a KV when the key holds no value
var ErrNotFound = errors.New("backup entry not found")

// KV is the byte store underneath a Backup.
// Implementations may honour ttl natively; Backup enforces it either way.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
