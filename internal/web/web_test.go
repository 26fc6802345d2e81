package web_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/marketid/internal/factory"
	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/testutil"
	"github.com/mcoot/marketid/internal/web"
)

// webTestServer provides a test server for web interface testing. Each
// webTestServer is one browser; browsers from newBrowser share the app.
type webTestServer struct {
	t       *testing.T
	handler http.Handler
	app     *factory.TestApp
	cookies *cookieJar
}

// newWebTestServer creates a new test server with all dependencies wired
func newWebTestServer(t *testing.T) *webTestServer {
	t.Helper()

	app := factory.NewTestApp()
	t.Cleanup(app.Close)

	guardCfg := guard.DefaultConfig()
	router := web.NewRouter(web.RouterConfig{
		Logger:      testutil.NopLogger(),
		Registry:    app.Registry,
		AuthService: app.AuthService,
		GuardConfig: guardCfg,
		StaticDir:   "", // No static files in tests
	})

	return &webTestServer{
		t:       t,
		handler: router,
		app:     app,
		cookies: newCookieJar(),
	}
}

// newBrowser returns a second browser against the same server
func (ts *webTestServer) newBrowser() *webTestServer {
	return &webTestServer{
		t:       ts.t,
		handler: ts.handler,
		app:     ts.app,
		cookies: newCookieJar(),
	}
}

// request makes an HTTP request and returns the response
func (ts *webTestServer) request(method, path string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	// Add cookies from jar
	ts.cookies.addTo(req)

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	// Extract Set-Cookie headers into jar
	ts.cookies.extract(rr)

	return rr
}

// get makes a GET request
func (ts *webTestServer) get(path string) *httptest.ResponseRecorder {
	return ts.request(http.MethodGet, path, nil)
}

// post makes a POST request with form data
func (ts *webTestServer) post(path string, form url.Values) *httptest.ResponseRecorder {
	return ts.request(http.MethodPost, path, form)
}

// parseHTML parses the response body as HTML
func parseHTML(r io.Reader) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		panic(err)
	}
	return doc
}

// cookieJar maintains cookies across requests (like a browser would)
type cookieJar struct {
	cookies map[string]*http.Cookie
}

func newCookieJar() *cookieJar {
	return &cookieJar{
		cookies: make(map[string]*http.Cookie),
	}
}

// addTo adds all cookies to the request
func (j *cookieJar) addTo(req *http.Request) {
	for _, cookie := range j.cookies {
		req.AddCookie(cookie)
	}
}

// extract extracts Set-Cookie headers from response
func (j *cookieJar) extract(rr *httptest.ResponseRecorder) {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.MaxAge < 0 {
			// Cookie being deleted
			delete(j.cookies, cookie.Name)
		} else {
			j.cookies[cookie.Name] = cookie
		}
	}
}

// session returns the session cookie value, or "" if none is set
func (j *cookieJar) session() string {
	if cookie, ok := j.cookies["session"]; ok {
		return cookie.Value
	}
	return ""
}

// Helper functions for common test operations

// register registers through the form and expects the redirect home
func (ts *webTestServer) register(email, name string, role model.Role) {
	ts.t.Helper()
	form := url.Values{
		"email":            {email},
		"name":             {name},
		"password":         {factory.TestPassword},
		"password_confirm": {factory.TestPassword},
		"role":             {string(role)},
	}
	rr := ts.post("/register", form)
	require.Equal(ts.t, http.StatusSeeOther, rr.Code, "Expected redirect after registration")
	require.NotEmpty(ts.t, ts.cookies.session(), "Expected session cookie to be set")
}

// login signs in through the form and expects the redirect
func (ts *webTestServer) login(email, password string) *httptest.ResponseRecorder {
	ts.t.Helper()
	rr := ts.post("/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(ts.t, http.StatusSeeOther, rr.Code, "Expected redirect after sign in")
	return rr
}

// loginAsAdmin creates the admin account and signs in with it
func (ts *webTestServer) loginAsAdmin() {
	ts.t.Helper()
	_, err := ts.app.EnsureAdmin(ts.t.Context(), "admin@example.com", "adminpass1")
	require.NoError(ts.t, err)
	ts.login("admin@example.com", "adminpass1")
}

// followRedirect follows a redirect and returns the response
func (ts *webTestServer) followRedirect(rr *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	ts.t.Helper()
	location := rr.Header().Get("Location")
	require.NotEmpty(ts.t, location, "Expected Location header for redirect")
	return ts.get(location)
}

// Assertion helpers

// assertContainsElement asserts that the document contains an element matching the selector
func assertContainsElement(t *testing.T, doc *goquery.Document, selector string) {
	t.Helper()
	if doc.Find(selector).Length() == 0 {
		t.Errorf("Expected to find element matching %q, but none found", selector)
	}
}

// assertNotContainsElement asserts that the document does not contain an element matching the selector
func assertNotContainsElement(t *testing.T, doc *goquery.Document, selector string) {
	t.Helper()
	if doc.Find(selector).Length() > 0 {
		t.Errorf("Expected NOT to find element matching %q, but found %d", selector, doc.Find(selector).Length())
	}
}

// assertContainsText asserts that the element matching the selector contains the text
func assertContainsText(t *testing.T, doc *goquery.Document, selector, text string) {
	t.Helper()
	el := doc.Find(selector)
	if el.Length() == 0 {
		t.Errorf("Expected to find element matching %q, but none found", selector)
		return
	}
	if !strings.Contains(el.Text(), text) {
		t.Errorf("Expected element %q to contain %q, but got %q", selector, text, el.Text())
	}
}
