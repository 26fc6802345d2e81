package guard

import (
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
)

// GuestCheckoutPath is reachable without a session whatever its route requirement
const GuestCheckoutPath = "/checkout/guest"

// Outcome is what a route should do for a request
type Outcome int

const (
	// Render the route
	Render Outcome = iota
	// Loading shows a neutral placeholder until the session settles
	Loading
	// SignIn redirects to the sign-in entry point, remembering the path
	SignIn
	// Deny redirects away without rendering
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case SignIn:
		return "sign_in"
	case Deny:
		return "deny"
	}
	return "unknown"
}

// Request is the input to Decide
type Request struct {
	Path string
	// Requirement is the capability the route demands; empty for public routes
	Requirement model.Capability
	State       model.SessionState
	Identity    *model.ResolvedIdentity
}

// Decision is the outcome for a request. Next is the path to return to after
// signing in and is only set for SignIn.
type Decision struct {
	Outcome Outcome
	Next    string
}

// Decide applies the route policy to a request
func Decide(req Request) Decision {
	if req.Path == GuestCheckoutPath || req.Requirement == "" {
		return Decision{Outcome: Render}
	}
	if !req.State.Settled() {
		return Decision{Outcome: Loading}
	}
	if req.Identity == nil {
		return Decision{Outcome: SignIn, Next: req.Path}
	}
	if !identity.HasPermission(req.Identity, req.Requirement) {
		return Decision{Outcome: Deny}
	}
	return Decision{Outcome: Render}
}
