package routes

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mbolis/leadbox/app"
	"github.com/mbolis/leadbox/auth"
	"github.com/mbolis/leadbox/config"
	"github.com/mbolis/leadbox/httpx"
	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/routes/middlewares"
	"github.com/mbolis/leadbox/store"
)

const (
	testSecret   = "test-token-secret"
	testPassword = "s3cret"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	goleak.VerifyTestMain(m)
}

func newTestApp(t *testing.T, tweak func(*config.Config)) app.App {
	t.Helper()

	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	subs, visits, err := app.OpenStores(backend)
	require.NoError(t, err)

	admin, err := auth.NewCredential("admin", testPassword, "")
	require.NoError(t, err)
	tokens := auth.NewTokenRegistry(httpx.RefreshTTL, nil)

	public := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(public, "index.html"), []byte("<h1>home</h1>"), 0o644))
	private := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(private, "index.html"), []byte("<h1>dashboard</h1>"), 0o644))

	cfg := config.Config{
		TokenSecret:  testSecret,
		TokenTTL:     time.Hour,
		AdminUser:    "admin",
		SessionKey:   "test-session-key",
		PublicDir:    public,
		PrivateDir:   private,
		MaxBodyBytes: 64 << 10,
	}
	if tweak != nil {
		tweak(&cfg)
	}

	return app.App{
		Submissions:  subs,
		Visits:       visits,
		Admin:        admin,
		Tokens:       tokens,
		Sessions:     middlewares.NewVisitorStore([]byte(cfg.SessionKey), false),
		BearerServer: httpx.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, admin, tokens),
		Config:       cfg,
	}
}

type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
	bearer  string
}

func newClient(t *testing.T, h http.Handler) *client {
	return &client{t: t, handler: h, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(method, target, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("content-type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("authorization", "Bearer "+c.bearer)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

func (c *client) login(password string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.SetBasicAuth("admin", password)
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		var tokens middlewares.TokenResponse
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &tokens))
		c.bearer = tokens.AccessToken
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSubmitForm(t *testing.T) {
	h := Wire(newTestApp(t, nil))

	tests := []struct {
		name    string
		target  string
		body    string
		status  int
		message string
	}{
		{"contact", "/api/submissions", `{"formType":"contact","data":{"name":"A","email":"a@x.com"}}`, http.StatusCreated, "Form submitted successfully"},
		{"newsletter on typed route", "/api/forms/newsletter", `{"email":"b@x.com"}`, http.StatusCreated, "Form submitted successfully"},
		{"empty data object", "/api/submissions", `{"formType":"emiCalculator","data":{}}`, http.StatusCreated, "Form submitted successfully"},
		{"unknown type", "/api/submissions", `{"formType":"brochure","data":{"a":1}}`, http.StatusBadRequest, "Invalid form type"},
		{"unknown type on typed route", "/api/forms/brochure", `{"a":1}`, http.StatusBadRequest, "Invalid form type"},
		{"missing type", "/api/submissions", `{"data":{"a":1}}`, http.StatusBadRequest, "Invalid form type"},
		{"missing data", "/api/submissions", `{"formType":"contact"}`, http.StatusBadRequest, "Missing form data"},
		{"null data", "/api/forms/siteVisit", `null`, http.StatusBadRequest, "Missing form data"},
		{"empty body", "/api/submissions", ``, http.StatusBadRequest, "Empty request body"},
		{"broken json", "/api/submissions", `{"formType":`, http.StatusBadRequest, "Bad Request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newClient(t, h).do(http.MethodPost, tt.target, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := decode(t, rec)
			assert.Equal(t, tt.message, body["message"])
			assert.Equal(t, tt.status == http.StatusCreated, body["success"])
			if tt.status == http.StatusCreated {
				assert.NotEmpty(t, body["id"])
				sub := body["submission"].(map[string]any)
				assert.Equal(t, body["id"], sub["id"])
				assert.NotEmpty(t, sub["timestamp"])
			}
		})
	}
}

func TestSubmitForm_BodyTooLarge(t *testing.T) {
	h := Wire(newTestApp(t, func(cfg *config.Config) { cfg.MaxBodyBytes = 64 }))

	big := `{"formType":"contact","data":{"message":"` + strings.Repeat("x", 200) + `"}}`
	rec := newClient(t, h).do(http.MethodPost, "/api/submissions", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSubmitForm_RateLimited(t *testing.T) {
	h := Wire(newTestApp(t, func(cfg *config.Config) { cfg.SubmitInterval = time.Minute }))
	c := newClient(t, h)

	rec := c.do(http.MethodPost, "/api/forms/contact", `{"name":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = c.do(http.MethodPost, "/api/forms/contact", `{"name":"A"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, decode(t, rec)["success"].(bool))

	// reads are never limited
	rec = c.do(http.MethodGet, "/api/visits", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVisits(t *testing.T) {
	h := Wire(newTestApp(t, nil))
	alice := newClient(t, h)
	bob := newClient(t, h)

	total := func(c *client) float64 {
		rec := c.do(http.MethodGet, "/api/visits", "")
		require.Equal(t, http.StatusOK, rec.Code)
		return decode(t, rec)["totalVisits"].(float64)
	}

	assert.Equal(t, 0.0, total(alice))

	rec := alice.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home")
	assert.Contains(t, alice.cookies, middlewares.VisitorSessionName)

	alice.do(http.MethodGet, "/projects/lakeview", "")
	alice.do(http.MethodGet, "/", "")
	assert.Equal(t, 1.0, total(alice))

	rec = bob.do(http.MethodPost, "/api/visits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decode(t, rec)["totalVisits"])

	bob.do(http.MethodGet, "/", "")
	bob.do(http.MethodPost, "/api/visits", "")
	assert.Equal(t, 2.0, total(bob))
	assert.Equal(t, 2.0, decode(t, bob.do(http.MethodGet, "/api/visits", ""))["dailyVisits"])
}

func TestCalculateEMI(t *testing.T) {
	h := Wire(newTestApp(t, nil))
	c := newClient(t, h)

	rec := c.do(http.MethodPost, "/api/emi", `{"principal":100000,"annualRate":10,"months":12,"schedule":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	result := body["result"].(map[string]any)
	assert.InDelta(t, 8791.59, result["monthlyPayment"], 0.011)
	assert.Len(t, body["schedule"], 12)

	rec = c.do(http.MethodPost, "/api/emi", `{"principal":100000,"annualRate":10,"months":12}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode(t, rec), "schedule")

	rec = c.do(http.MethodPost, "/api/emi", `{"principal":0,"annualRate":10,"months":12}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "principal must be positive", decode(t, rec)["message"])

	for _, body := range []string{
		`{"principal":100000,"annualRate":1000000,"months":600}`,
		`{"principal":1.7e308,"annualRate":100,"months":600,"schedule":true}`,
	} {
		rec = c.do(http.MethodPost, "/api/emi", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.False(t, decode(t, rec)["success"].(bool), body)
	}
}

func TestAdmin_RequiresToken(t *testing.T) {
	h := Wire(newTestApp(t, nil))
	c := newClient(t, h)

	for _, target := range []string{"/api/admin/stats", "/api/admin/submissions", "/api/admin/visits"} {
		rec := c.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}

	c.bearer = "garbage"
	rec := c.do(http.MethodGet, "/api/admin/stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodPost, "/api/admin/visits/reset", `{"resetTo":0}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin(t *testing.T) {
	h := Wire(newTestApp(t, nil))

	c := newClient(t, h)
	rec := c.login("wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, c.bearer)

	rec = c.login(testPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, c.bearer)

	var names []string
	for _, cookie := range rec.Result().Cookies() {
		names = append(names, cookie.Name)
		assert.True(t, cookie.HttpOnly)
	}
	assert.ElementsMatch(t, []string{middlewares.AccessTokenCookie, middlewares.RefreshTokenCookie}, names)

	rec = newClient(t, h).do(http.MethodPost, "/api/login", `{"username":"admin","password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = newClient(t, h).do(http.MethodPost, "/api/login", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_Flow(t *testing.T) {
	a := newTestApp(t, nil)
	h := Wire(a)

	visitor := newClient(t, h)
	rec := visitor.do(http.MethodPost, "/api/submissions", `{"formType":"contact","data":{"name":"A","email":"a@x.com"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	contactID := decode(t, rec)["id"].(string)
	rec = visitor.do(http.MethodPost, "/api/submissions", `{"formType":"newsletter","data":{"email":"b@x.com"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	newsletterID := decode(t, rec)["id"].(string)
	visitor.do(http.MethodGet, "/", "")

	admin := newClient(t, h)
	require.Equal(t, http.StatusOK, admin.login(testPassword).Code)

	rec = admin.do(http.MethodGet, "/api/admin/stats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode(t, rec)
	assert.Equal(t, 2.0, stats["total"])
	assert.Equal(t, map[string]any{"contact": 1.0, "newsletter": 1.0}, stats["byType"])
	recent := stats["recent"].([]any)
	require.Len(t, recent, 2)
	assert.Equal(t, 1.0, stats["visits"].(map[string]any)["totalVisits"])

	rec = admin.do(http.MethodGet, "/api/admin/submissions?type=newsletter", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, 1.0, list["total"])
	assert.Equal(t, newsletterID, list["submissions"].([]any)[0].(map[string]any)["id"])

	rec = admin.do(http.MethodGet, "/api/admin/submissions?limit=1&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode(t, rec)
	assert.Equal(t, 2.0, list["total"])
	require.Len(t, list["submissions"], 1)
	assert.Equal(t, contactID, list["submissions"].([]any)[0].(map[string]any)["id"])

	rec = admin.do(http.MethodGet, "/api/admin/submissions?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = admin.do(http.MethodGet, "/api/admin/submissions/"+contactID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "contact", decode(t, rec)["formType"])

	rec = admin.do(http.MethodDelete, "/api/admin/submissions/"+contactID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = admin.do(http.MethodDelete, "/api/admin/submissions/"+contactID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = admin.do(http.MethodGet, "/api/admin/submissions/"+contactID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, a.Submissions.Stats().Total)

	rec = admin.do(http.MethodPost, "/api/admin/visits/reset", `{"resetTo":-3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = admin.do(http.MethodPost, "/api/admin/visits/reset", `{"resetTo":0,"reason":"test"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reset := decode(t, rec)
	assert.Equal(t, true, reset["success"])
	counter := reset["counter"].(map[string]any)
	assert.Equal(t, 0.0, counter["totalVisits"])
	assert.Equal(t, 0.0, counter["dailyVisits"])
	assert.Equal(t, "admin", counter["lastResetBy"])
	assert.Equal(t, "test", counter["lastResetReason"])

	// the visitor's session counts again after a reset
	visitor.do(http.MethodGet, "/", "")
	assert.Equal(t, 1, a.Visits.Get().TotalVisits)

	rec = admin.do(http.MethodPost, "/api/admin/visits/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.DefaultResetReason, decode(t, rec)["counter"].(map[string]any)["lastResetReason"])

	rec = admin.do(http.MethodPost, "/api/admin/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, a.Tokens.Len())
}

func TestAdmin_Refresh(t *testing.T) {
	h := Wire(newTestApp(t, nil))
	c := newClient(t, h)

	rec := c.login(testPassword)
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens middlewares.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.NotEmpty(t, tokens.RefreshToken)

	refresh := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
		req.Header.Set("authorization", "Refresh "+tokens.RefreshToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, refresh())
	assert.NotEqual(t, http.StatusOK, refresh(), "a refresh token is single use")

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", bytes.NewReader(nil))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboard(t *testing.T) {
	h := Wire(newTestApp(t, nil))

	anonymous := newClient(t, h)
	rec := anonymous.do(http.MethodGet, "/admin/", "")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("location"), "/login?goto="))

	admin := newClient(t, h)
	require.Equal(t, http.StatusOK, admin.login(testPassword).Code)

	// cookies only, no bearer header
	bearer := admin.bearer
	admin.bearer = ""
	admin.cookies[middlewares.AccessTokenCookie] = &http.Cookie{Name: middlewares.AccessTokenCookie, Value: bearer}

	rec = admin.do(http.MethodGet, "/admin/submissions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dashboard")
}

func TestHealth(t *testing.T) {
	rec := newClient(t, Wire(newTestApp(t, nil))).do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}
