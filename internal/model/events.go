package model

// SessionEventKind names a change in the authentication backend's session
type SessionEventKind string

const (
	EventInitialSession SessionEventKind = "INITIAL_SESSION"
	EventSignedIn       SessionEventKind = "SIGNED_IN"
	EventSignedOut      SessionEventKind = "SIGNED_OUT"
	EventTokenRefreshed SessionEventKind = "TOKEN_REFRESHED"
	EventUserUpdated    SessionEventKind = "USER_UPDATED"
)

// SessionEvent is delivered on the backend's session-change feed.
// Principal is nil when the session no longer has a user.
type SessionEvent struct {
	Kind      SessionEventKind `json:"kind"`
	Principal *Principal       `json:"principal,omitempty"`
}

// Signal is a lifecycle cue that the user has returned to the application
type Signal string

const (
	SignalVisibility Signal = "visibility"
	SignalFocus      Signal = "focus"
	SignalPageShow   Signal = "pageshow"
	SignalManual     Signal = "manual"
)

// ParseSignal returns the lifecycle signal named by s
func ParseSignal(s string) (Signal, bool) {
	switch sig := Signal(s); sig {
	case SignalVisibility, SignalFocus, SignalPageShow, SignalManual:
		return sig, true
	}
	return "", false
}
