package identity

import "time"

// Config holds timing and policy settings for an Engine
type Config struct {
	// ProfileTimeout bounds each profile and store fetch during hydration
	ProfileTimeout time.Duration
	// Cooldown is the minimum gap between completed session checks
	Cooldown time.Duration
	// Debounce delays a signal-triggered check so bursts of signals coalesce
	Debounce time.Duration
	// ReissueOnRoleDrift asks the backend to re-mint the session when the
	// profile role no longer matches the token's role claim
	ReissueOnRoleDrift bool
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		ProfileTimeout:     3 * time.Second,
		Cooldown:           2 * time.Second,
		Debounce:           500 * time.Millisecond,
		ReissueOnRoleDrift: true,
	}
}
