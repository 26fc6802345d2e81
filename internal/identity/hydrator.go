package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mcoot/marketid/internal/dependencies/clock"
	"github.com/mcoot/marketid/internal/model"
)

// Hydrator builds a ResolvedIdentity from a principal and its stored records
type Hydrator struct {
	profiles ProfileSource
	stores   StoreSource
	clock    clock.Clock
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHydrator creates a Hydrator; each fetch is bounded by timeout
func NewHydrator(profiles ProfileSource, stores StoreSource, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *Hydrator {
	return &Hydrator{
		profiles: profiles,
		stores:   stores,
		clock:    clk,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "hydrator")),
	}
}

// Hydrate never fails: fetch errors, timeouts and panics degrade to the
// identity that can be built from the principal alone.
func (h *Hydrator) Hydrate(ctx context.Context, principal *model.Principal) (identity *model.ResolvedIdentity) {
	base := h.provisional(principal)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("hydration panicked",
				slog.String("user_id", string(principal.ID)),
				slog.Any("panic", r))
			identity = base
		}
	}()

	profile := h.fetchProfile(ctx, principal.ID)

	resolved := base.Clone()
	if profile != nil {
		if profile.Role.IsValid() {
			resolved.Role = profile.Role
		} else if profile.Role != "" {
			h.logger.Warn("ignoring invalid profile role",
				slog.String("user_id", string(principal.ID)),
				slog.String("role", string(profile.Role)))
		}
		if name := strings.TrimSpace(profile.Name); name != "" {
			resolved.Name = name
		}
		resolved.Fields = profile.Clone().Fields
	}

	if resolved.Role == model.RoleStore {
		resolved.Store = h.fetchStore(ctx, principal.ID)
	}

	resolved.ResolvedAt = h.clock.Now()
	return resolved
}

// provisional derives role and name from the principal's metadata hints
func (h *Hydrator) provisional(principal *model.Principal) *model.ResolvedIdentity {
	var tokenRole model.Role
	if parsed, ok := model.ParseRole(principal.MetadataString(model.MetadataRole)); ok {
		tokenRole = parsed
	}

	role := tokenRole
	if role == "" {
		role = model.RoleUser
	}

	name := principal.MetadataString(model.MetadataName)
	if name == "" {
		name = principal.EmailLocalPart()
	}
	if name == "" {
		name = string(principal.ID)
	}

	return &model.ResolvedIdentity{
		ID:         principal.ID,
		Email:      principal.Email,
		Metadata:   principal.Clone().Metadata,
		Name:       name,
		Role:       role,
		TokenRole:  tokenRole,
		ResolvedAt: h.clock.Now(),
	}
}

func (h *Hydrator) fetchProfile(ctx context.Context, id model.PrincipalID) *model.Profile {
	if h.profiles == nil {
		return nil
	}
	profile, err := WithTimeout(ctx, h.timeout, func(ctx context.Context) (*model.Profile, error) {
		return h.profiles.GetProfile(ctx, id)
	})
	if err != nil {
		h.logFetchError("profile", id, err, model.ErrProfileNotFound)
		return nil
	}
	return profile
}

func (h *Hydrator) fetchStore(ctx context.Context, id model.PrincipalID) *model.StoreRecord {
	if h.stores == nil {
		return nil
	}
	store, err := WithTimeout(ctx, h.timeout, func(ctx context.Context) (*model.StoreRecord, error) {
		return h.stores.GetStoreByOwner(ctx, id)
	})
	if err != nil {
		h.logFetchError("store", id, err, model.ErrStoreNotFound)
		return nil
	}
	return store
}

func (h *Hydrator) logFetchError(what string, id model.PrincipalID, err, notFound error) {
	attrs := []any{
		slog.String("record", what),
		slog.String("user_id", string(id)),
		slog.Any("error", err),
	}
	switch {
	case errors.Is(err, notFound):
		h.logger.Debug("record not found during hydration", attrs...)
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("record fetch timed out during hydration", attrs...)
	default:
		h.logger.Warn("record fetch failed during hydration", attrs...)
	}
}
