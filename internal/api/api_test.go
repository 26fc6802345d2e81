package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/marketid/internal/api"
	"github.com/mcoot/marketid/internal/api/apierr"
	"github.com/mcoot/marketid/internal/api/response"
	"github.com/mcoot/marketid/internal/factory"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/testutil"
)

// testServer creates a test server with all dependencies
type testServer struct {
	t       *testing.T
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	t.Cleanup(app.Close)

	router := api.NewRouter(api.RouterConfig{
		Logger:      testutil.NopLogger(),
		Registry:    app.Registry,
		AuthService: app.AuthService,
	})

	return &testServer{
		t:       t,
		handler: router,
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// login signs in and returns the client ID
func (ts *testServer) login(email, password string) string {
	ts.t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(ts.t, http.StatusOK, rr.Code, rr.Body.String())

	var resp response.AuthResponse
	require.NoError(ts.t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(ts.t, resp.ClientID)
	return resp.ClientID
}

func (ts *testServer) createUser(email, name string, role model.Role) model.PrincipalID {
	ts.t.Helper()
	id, err := ts.app.CreateUser(ts.t.Context(), email, name, role)
	require.NoError(ts.t, err)
	return id
}

func (ts *testServer) allowed(token string, capability model.Capability) bool {
	ts.t.Helper()
	rr := ts.request(http.MethodGet, "/api/v1/permissions/"+string(capability), nil, token)
	require.Equal(ts.t, http.StatusOK, rr.Code)
	var resp response.PermissionResponse
	require.NoError(ts.t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Allowed
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRegisterAndMe(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{
		"email":      "shop@example.com",
		"password":   "secret123",
		"name":       "Shop Owner",
		"role":       "store",
		"store_name": "Corner Shop",
	}
	rr := ts.request(http.MethodPost, "/api/v1/auth/register", body, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var registerResp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &registerResp))
	require.NotNil(t, registerResp.Identity)
	assert.Equal(t, "store", registerResp.Identity.Role)
	require.NotNil(t, registerResp.Identity.Store)
	assert.Equal(t, "Corner Shop", registerResp.Identity.Store.Name)

	rr = ts.request(http.MethodGet, "/api/v1/me", nil, registerResp.ClientID)
	require.Equal(t, http.StatusOK, rr.Code)

	var me response.MeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, string(model.SessionResolved), me.State)
	assert.Equal(t, "Shop Owner", me.Identity.Name)
	assert.Equal(t, "shop@example.com", me.Identity.Email)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing email", map[string]any{"password": "secret123"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"short password", map[string]any{"email": "a@example.com", "password": "short"}, http.StatusBadRequest, apierr.CodePasswordTooShort},
		{"bad email", map[string]any{"email": "not-an-email", "password": "secret123"}, http.StatusBadRequest, apierr.CodeInvalidEmail},
		{"unknown role", map[string]any{"email": "a@example.com", "password": "secret123", "role": "owner"}, http.StatusBadRequest, apierr.CodeInvalidRole},
		{"admin role", map[string]any{"email": "a@example.com", "password": "secret123", "role": "admin"}, http.StatusBadRequest, apierr.CodeInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/auth/register", tt.body, "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, errorCode(t, rr))
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice@example.com", "Alice", model.RoleUser)

	rr := ts.request(http.MethodPost, "/api/v1/auth/register", map[string]any{
		"email":    "ALICE@example.com",
		"password": "secret123",
	}, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeEmailExists, errorCode(t, rr))
}

func TestLoginInvalidCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice@example.com", "Alice", model.RoleUser)

	rr := ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidCredentials, errorCode(t, rr))
}

func TestLoginReusesClient(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice@example.com", "Alice", model.RoleUser)
	ts.createUser("bob@example.com", "Bob", model.RoleUser)

	clientID := ts.login("alice@example.com", factory.TestPassword)

	rr := ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "bob@example.com",
		"password": factory.TestPassword,
	}, clientID)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, clientID, resp.ClientID)
	assert.Equal(t, "Bob", resp.Identity.Name)
	assert.Equal(t, 1, ts.app.Registry.Len())
}

func TestMeRequiresClient(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeUnauthorized, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/me", nil, "no-such-client")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeClientNotFound, errorCode(t, rr))
}

func TestMeAnonymousClient(t *testing.T) {
	ts := newTestServer(t)

	clientID, engine := ts.app.Registry.Create(t.Context())
	<-engine.Ready()

	rr := ts.request(http.MethodGet, "/api/v1/me", nil, clientID)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	assert.False(t, ts.allowed(clientID, model.CapabilityAnyAuth))
}

func TestPermissions(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice@example.com", "Alice", model.RoleUser)
	clientID := ts.login("alice@example.com", factory.TestPassword)

	assert.True(t, ts.allowed(clientID, model.CapabilityAnyAuth))
	assert.True(t, ts.allowed(clientID, model.CapabilityUser))
	assert.False(t, ts.allowed(clientID, model.CapabilityStore))
	assert.False(t, ts.allowed(clientID, model.CapabilityAdmin))
	assert.False(t, ts.allowed(clientID, "billing"))
}

func TestSessionCheckCooldown(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice@example.com", "Alice", model.RoleUser)
	clientID := ts.login("alice@example.com", factory.TestPassword)

	check := func() response.CheckResponse {
		rr := ts.request(http.MethodPost, "/api/v1/session/check", nil, clientID)
		require.Equal(t, http.StatusOK, rr.Code)
		var resp response.CheckResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		return resp
	}

	first := check()
	assert.True(t, first.Ran)
	assert.Equal(t, string(model.SessionResolved), first.State)
	assert.Equal(t, "Alice", first.Identity.Name)

	assert.False(t, check().Ran)

	ts.app.MockClock.Advance(ts.app.IdentityConfig.Cooldown)
	assert.True(t, check().Ran)
}

func TestLifecycleSignal(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice@example.com", "Alice", model.RoleUser)
	clientID := ts.login("alice@example.com", factory.TestPassword)

	rr := ts.request(http.MethodPost, "/api/v1/lifecycle/focus", nil, clientID)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	var resp response.SignalResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "focus", resp.Signal)
	assert.True(t, resp.Scheduled)

	rr = ts.request(http.MethodPost, "/api/v1/lifecycle/blur", nil, clientID)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidSignal, errorCode(t, rr))
}

func TestAdminSetRole(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.app.EnsureAdmin(t.Context(), "admin@example.com", "adminpass1")
	require.NoError(t, err)
	userID := ts.createUser("bob@example.com", "Bob", model.RoleUser)

	adminClient := ts.login("admin@example.com", "adminpass1")
	userClient := ts.login("bob@example.com", factory.TestPassword)
	assert.False(t, ts.allowed(userClient, model.CapabilityStore))

	rr := ts.request(http.MethodPatch, "/api/v1/admin/users/"+string(userID)+"/role",
		map[string]string{"role": "store"}, adminClient)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var profile response.ProfileResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &profile))
	assert.Equal(t, "store", profile.Role)

	assert.Eventually(t, func() bool {
		return ts.allowed(userClient, model.CapabilityStore)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.createUser("bob@example.com", "Bob", model.RoleUser)
	userClient := ts.login("bob@example.com", factory.TestPassword)

	rr := ts.request(http.MethodPatch, "/api/v1/admin/users/"+string(userID)+"/role",
		map[string]string{"role": "admin"}, userClient)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apierr.CodeForbidden, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/admin/users/"+string(userID)+"/revoke", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminSetRoleInvalid(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.app.EnsureAdmin(t.Context(), "admin@example.com", "adminpass1")
	require.NoError(t, err)
	adminClient := ts.login("admin@example.com", "adminpass1")

	rr := ts.request(http.MethodPatch, "/api/v1/admin/users/nobody/role",
		map[string]string{"role": "store"}, adminClient)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodPatch, "/api/v1/admin/users/nobody/role",
		map[string]string{"role": "owner"}, adminClient)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidRole, errorCode(t, rr))
}

func TestAdminRevoke(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.app.EnsureAdmin(t.Context(), "admin@example.com", "adminpass1")
	require.NoError(t, err)
	userID := ts.createUser("bob@example.com", "Bob", model.RoleUser)

	adminClient := ts.login("admin@example.com", "adminpass1")
	userClient := ts.login("bob@example.com", factory.TestPassword)

	rr := ts.request(http.MethodPost, "/api/v1/admin/users/"+string(userID)+"/revoke", nil, adminClient)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	assert.Eventually(t, func() bool {
		return ts.request(http.MethodGet, "/api/v1/me", nil, userClient).Code == http.StatusUnauthorized
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice@example.com", "Alice", model.RoleUser)
	clientID := ts.login("alice@example.com", factory.TestPassword)

	rr := ts.request(http.MethodPost, "/api/v1/auth/logout", nil, clientID)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/me", nil, clientID)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeClientNotFound, errorCode(t, rr))
	assert.Nil(t, ts.app.Backup.ForClient(clientID).Load(t.Context()))
}
