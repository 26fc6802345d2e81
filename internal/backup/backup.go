package backup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/marketid/internal/dependencies/clock"
)

// Config holds backup settings
type Config struct {
	TTL time.Duration
}

// DefaultConfig returns the default backup configuration
func DefaultConfig() Config {
	return Config{
		TTL: 24 * time.Hour,
	}
}

// Entry is the stored envelope around a backed-up value
type Entry struct {
	Value     json.RawMessage `json:"value"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Backup is a time-limited store for values that may be served optimistically
// before they are confirmed. Nothing loaded from it is authoritative.
type Backup struct {
	kv     KV
	clock  clock.Clock
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Backup over kv
func New(kv KV, clk clock.Clock, cfg Config, logger *slog.Logger) *Backup {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Backup{
		kv:     kv,
		clock:  clk,
		ttl:    cfg.TTL,
		logger: logger.With(slog.String("component", "backup")),
	}
}

// Sweep drops expired entries from backends that do not expire them
// natively. It returns the number removed.
func (b *Backup) Sweep() int {
	sw, ok := b.kv.(interface{ Sweep() int })
	if !ok {
		return 0
	}
	removed := sw.Sweep()
	if removed > 0 {
		b.logger.Debug("expired backups swept", slog.Int("count", removed))
	}
	return removed
}

// TTL returns how long an entry stays valid after it is stored
func (b *Backup) TTL() time.Duration {
	return b.ttl
}

// Set stores value under key, stamped with the current time
func (b *Backup) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	now := b.clock.Now()
	data, err := json.Marshal(Entry{
		Value:     raw,
		StoredAt:  now,
		ExpiresAt: now.Add(b.ttl),
	})
	if err != nil {
		return err
	}
	return b.kv.Set(ctx, key, data, b.ttl)
}

// Delete removes key
func (b *Backup) Delete(ctx context.Context, key string) error {
	return b.kv.Delete(ctx, key)
}

// Load returns the value stored under key, or def if it is missing, unreadable
// or older than the TTL. Stale and unreadable entries are deleted.
func Load[T any](ctx context.Context, b *Backup, key string, def T) T {
	data, err := b.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.logger.Warn("backup read failed", slog.String("key", key), slog.Any("error", err))
		}
		return def
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		b.logger.Warn("discarding unreadable backup entry", slog.String("key", key), slog.Any("error", err))
		b.drop(ctx, key)
		return def
	}

	if !b.clock.Now().Before(entry.StoredAt.Add(b.ttl)) {
		b.logger.Debug("discarding expired backup entry", slog.String("key", key))
		b.drop(ctx, key)
		return def
	}

	var value T
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		b.logger.Warn("discarding unreadable backup value", slog.String("key", key), slog.Any("error", err))
		b.drop(ctx, key)
		return def
	}
	return value
}

func (b *Backup) drop(ctx context.Context, key string) {
	if err := b.kv.Delete(ctx, key); err != nil {
		b.logger.Warn("failed to delete backup entry", slog.String("key", key), slog.Any("error", err))
	}
}
