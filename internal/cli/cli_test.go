package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/marketid/internal/api"
	"github.com/mcoot/marketid/internal/api/response"
	"github.com/mcoot/marketid/internal/factory"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/testutil"
)

type cliHarness struct {
	t         *testing.T
	app       *factory.TestApp
	serverURL string
	tokenFile string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	t.Setenv("MARKETID_TOKEN", "")

	app := factory.NewTestApp()
	t.Cleanup(app.Close)

	server := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Logger:      testutil.NopLogger(),
		Registry:    app.Registry,
		AuthService: app.AuthService,
	}))
	t.Cleanup(server.Close)

	return &cliHarness{
		t:         t,
		app:       app,
		serverURL: server.URL,
		tokenFile: filepath.Join(t.TempDir(), "token"),
	}
}

// run executes idctl with JSON output and returns stdout
func (h *cliHarness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{
		"--server", h.serverURL,
		"--token-file", h.tokenFile,
		"-o", "json",
	}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run("", args...)
	require.NoError(h.t, err, "output: %s", out)
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), "output: %s", out)
	return v
}

func TestRegisterSavesToken(t *testing.T) {
	h := newCLIHarness(t)

	out := h.mustRun("register", "--email", "alice@example.com", "--password", "secret123", "--name", "Alice")
	auth := decode[response.AuthResponse](t, out)
	require.NotNil(t, auth.Identity)
	assert.Equal(t, "Alice", auth.Identity.Name)
	assert.Equal(t, "user", auth.Identity.Role)

	saved, err := os.ReadFile(h.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, auth.ClientID, string(saved))

	me := decode[response.MeResponse](t, h.mustRun("whoami"))
	assert.Equal(t, string(model.SessionResolved), me.State)
	require.NotNil(t, me.Identity)
	assert.Equal(t, auth.Identity.ID, me.Identity.ID)
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.app.CreateUser(t.Context(), "bob@example.com", "Bob", model.RoleStore)
	require.NoError(t, err)

	out, err := h.run(factory.TestPassword+"\n", "login", "--email", "bob@example.com")
	require.NoError(t, err, "output: %s", out)

	auth := decode[response.AuthResponse](t, out)
	require.NotNil(t, auth.Identity)
	assert.Equal(t, "store", auth.Identity.Role)
	require.NotNil(t, auth.Identity.Store)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.app.CreateUser(t.Context(), "bob@example.com", "Bob", model.RoleUser)
	require.NoError(t, err)

	_, err = h.run("", "login", "--email", "bob@example.com", "--password", "wrongpass")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)

	_, statErr := os.Stat(h.tokenFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCanAndCheck(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("register", "--email", "shop@example.com", "--password", "secret123", "--role", "store", "--store-name", "Corner Shop")

	perm := decode[response.PermissionResponse](t, h.mustRun("can", "store_owner"))
	assert.True(t, perm.Allowed)

	perm = decode[response.PermissionResponse](t, h.mustRun("can", "admin"))
	assert.False(t, perm.Allowed)

	check := decode[response.CheckResponse](t, h.mustRun("check"))
	assert.Equal(t, string(model.SessionResolved), check.State)
	require.NotNil(t, check.Identity)
	require.NotNil(t, check.Identity.Store)
	assert.Equal(t, "Corner Shop", check.Identity.Store.Name)
}

func TestSignal(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("register", "--email", "alice@example.com", "--password", "secret123")

	sig := decode[response.SignalResponse](t, h.mustRun("signal", "focus"))
	assert.Equal(t, "focus", sig.Signal)

	_, err := h.run("", "signal", "blur")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_SIGNAL", apiErr.Code)
}

func TestLogoutClearsToken(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("register", "--email", "alice@example.com", "--password", "secret123")

	h.mustRun("logout")
	_, err := os.Stat(h.tokenFile)
	assert.True(t, os.IsNotExist(err))

	_, err = h.run("", "logout")
	assert.EqualError(t, err, "not signed in")
}

func TestAdminCommands(t *testing.T) {
	h := newCLIHarness(t)
	userID, err := h.app.CreateUser(t.Context(), "bob@example.com", "Bob", model.RoleUser)
	require.NoError(t, err)
	_, err = h.app.EnsureAdmin(t.Context(), "admin@example.com", "adminpass1")
	require.NoError(t, err)

	h.mustRun("login", "--email", "admin@example.com", "--password", "adminpass1")

	profile := decode[response.ProfileResponse](t, h.mustRun("admin", "set-role", string(userID), "store"))
	assert.Equal(t, "store", profile.Role)

	_, err = h.run("", "admin", "set-role", string(userID), "superuser")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_ROLE", apiErr.Code)

	h.mustRun("admin", "revoke", string(userID))
}

func TestHealth(t *testing.T) {
	h := newCLIHarness(t)

	health := decode[HealthResult](t, h.mustRun("health"))
	assert.Equal(t, "ok", health.Status)
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput("text", &buf)

	out.Print(response.MeResponse{
		State: "resolved",
		Identity: &response.IdentityResponse{
			ID:        "u1",
			Email:     "alice@example.com",
			Name:      "Alice",
			Role:      "store",
			TokenRole: "user",
			Store:     &response.StoreResponse{ID: "s1", Name: "Corner Shop"},
		},
	})

	text := buf.String()
	assert.Contains(t, text, "State: resolved")
	assert.Contains(t, text, "User: Alice (u1)")
	assert.Contains(t, text, "Token role: user (update pending)")
	assert.Contains(t, text, "Store: Corner Shop (s1)")

	buf.Reset()
	out.Print(response.PermissionResponse{Capability: "admin", Allowed: false, State: "resolved"})
	assert.Equal(t, "admin: denied (session resolved)\n", buf.String())
}

func TestConfigToken(t *testing.T) {
	c := &Config{TokenFile: filepath.Join(t.TempDir(), "nested", "token")}

	require.NoError(t, c.LoadToken())
	assert.Empty(t, c.Token)

	require.NoError(t, c.SaveToken("client-123"))
	loaded := &Config{TokenFile: c.TokenFile}
	require.NoError(t, loaded.LoadToken())
	assert.Equal(t, "client-123", loaded.Token)

	require.NoError(t, c.ClearToken())
	require.NoError(t, c.ClearToken())
	assert.Empty(t, c.Token)
}
