package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/mcoot/marketid/internal/api/response"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		o.printJSON(map[string]string{"message": msg})
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.AuthResponse:
		o.printIdentity(v.Identity)
	case response.MeResponse:
		o.printf("State: %s\n", v.State)
		o.printIdentity(v.Identity)
	case response.PermissionResponse:
		verdict := "denied"
		if v.Allowed {
			verdict = "allowed"
		}
		o.printf("%s: %s (session %s)\n", v.Capability, verdict, v.State)
	case response.CheckResponse:
		if !v.Ran {
			o.printf("Check skipped (cooldown or already running)\n")
		}
		o.printf("State: %s\n", v.State)
		o.printIdentity(v.Identity)
	case response.SignalResponse:
		if v.Scheduled {
			o.printf("Signal %s: refresh scheduled\n", v.Signal)
		} else {
			o.printf("Signal %s: ignored\n", v.Signal)
		}
	case response.ProfileResponse:
		o.printf("User: %s (%s)\n", v.Name, v.ID)
		o.printf("Role: %s\n", v.Role)
	case HealthResult:
		o.printf("Status: %s\n", v.Status)
		o.printf("Clients: %d\n", v.Clients)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (o *Output) printIdentity(id *response.IdentityResponse) {
	if id == nil {
		o.printf("Not signed in\n")
		return
	}
	o.printf("User: %s (%s)\n", id.Name, id.ID)
	o.printf("Email: %s\n", id.Email)
	o.printf("Role: %s\n", id.Role)
	if id.TokenRole != "" && id.TokenRole != id.Role {
		o.printf("Token role: %s (update pending)\n", id.TokenRole)
	}
	if id.Store != nil {
		o.printf("Store: %s (%s)\n", id.Store.Name, id.Store.ID)
	}
	keys := make([]string, 0, len(id.Fields))
	for k := range id.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.printf("  %s: %v\n", k, id.Fields[k])
	}
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}
