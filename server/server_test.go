package server_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-notes-session/authapi"
	"github.com/jrsteele09/go-notes-session/internal/config"
	"github.com/jrsteele09/go-notes-session/oidclogin"
	"github.com/jrsteele09/go-notes-session/server"
	"github.com/jrsteele09/go-notes-session/server/authflow"
	"github.com/jrsteele09/go-notes-session/session"
	"github.com/jrsteele09/go-notes-session/token/tokentest"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testEmail        = "user-1@example.com"
	testPassword     = "password123"
	testConfirmEmail = "pending@example.com"
	testClientID     = "notes-web"
	testCode         = "auth-code-1"
)

// fakeAuthAPI answers the password endpoints of the hosted auth API
type fakeAuthAPI struct {
	accessToken string

	mu       sync.Mutex
	signOuts []string
}

func (a *fakeAuthAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/v1/token", "/auth/v1/signup":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		if body.Email == testConfirmEmail {
			_, _ = w.Write([]byte(`{"id":"u-2","email":"pending@example.com"}`))
			return
		}
		if body.Email != testEmail || body.Password != testPassword {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  a.accessToken,
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
			"user": map[string]any{
				"id":            "u-1",
				"email":         testEmail,
				"user_metadata": map[string]any{"full_name": "Jane Doe", "avatar_url": "https://cdn.example.com/jane.png"},
			},
		})
	case "/auth/v1/logout":
		a.mu.Lock()
		a.signOuts = append(a.signOuts, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		a.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (a *fakeAuthAPI) signedOut() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.signOuts...)
}

type testFixture struct {
	now     time.Time
	authAPI *fakeAuthAPI
	flows   *authflow.InMemoryRepo
	server  *server.Server
}

func setupTestFixture(t *testing.T, login *oidclogin.Login) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("COOKIE_HASH_KEY", strings.Repeat("ab", 32))

	cfg, err := config.New()
	require.NoError(t, err)

	f := &testFixture{now: time.Now().Truncate(time.Second)}
	f.authAPI = &fakeAuthAPI{accessToken: tokentest.Expiring(t, "user-1", f.now.Add(time.Hour))}
	api := httptest.NewServer(f.authAPI)
	t.Cleanup(api.Close)

	f.flows = authflow.NewInMemoryRepo()
	client := authapi.New(api.URL, "anon-key", authapi.WithHTTPClient(api.Client()))
	f.server, err = server.New(cfg, client, login, f.flows, server.WithNowFunc(func() time.Time { return f.now }))
	require.NoError(t, err)
	return f
}

func (f *testFixture) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) get(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil), cookies)
}

func (f *testFixture) post(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodPost, path, nil), cookies)
}

func (f *testFixture) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req, nil)
}

func (f *testFixture) login(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := f.postForm(server.RouteAuthLogin, url.Values{"email": {testEmail}, "password": {testPassword}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := liveCookies(rec)
	require.NotNil(t, findCookie(cookies, session.KeyAccessToken))
	return cookies
}

// liveCookies returns the cookies a browser would keep from the response
func liveCookies(rec *httptest.ResponseRecorder) []*http.Cookie {
	var live []*http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			live = append(live, c)
		}
	}
	return live
}

// deletedCookies returns the names of cookies the response tells the browser to drop
func deletedCookies(rec *httptest.ResponseRecorder) []string {
	var names []string
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			names = append(names, c.Name)
		}
	}
	return names
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLogin(t *testing.T) {
	t.Run("success stores the credential in cookies", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.postForm(server.RouteAuthLogin, url.Values{"email": {testEmail}, "password": {testPassword}})

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, server.RouteDashboard, rec.Header().Get("Location"))

		cookies := liveCookies(rec)
		for _, name := range []string{session.KeyAccessToken, session.KeyRefreshToken, session.KeyProfile} {
			c := findCookie(cookies, name)
			require.NotNil(t, c, "cookie %s", name)
			require.True(t, c.HttpOnly)
			require.Equal(t, f.now.Add(time.Hour).Unix(), c.Expires.Unix())
		}
		require.Nil(t, findCookie(cookies, session.KeyOAuthIdentifier))
	})

	t.Run("invalid credentials", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.postForm(server.RouteAuthLogin, url.Values{"email": {testEmail}, "password": {"wrong"}})

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/?error=Invalid+email+or+password", rec.Header().Get("Location"))
		require.Empty(t, liveCookies(rec))
	})

	t.Run("missing fields", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.postForm(server.RouteAuthLogin, url.Values{"email": {testEmail}})

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Contains(t, rec.Header().Get("Location"), "error=")
		require.Empty(t, liveCookies(rec))
	})

	t.Run("return_to is honoured for local paths only", func(t *testing.T) {
		f := setupTestFixture(t, nil)

		rec := f.postForm(server.RouteAuthLogin, url.Values{"email": {testEmail}, "password": {testPassword}, "return_to": {"/profile"}})
		require.Equal(t, server.RouteProfile, rec.Header().Get("Location"))

		rec = f.postForm(server.RouteAuthLogin, url.Values{"email": {testEmail}, "password": {testPassword}, "return_to": {"//evil.example.com"}})
		require.Equal(t, server.RouteDashboard, rec.Header().Get("Location"))
	})

	t.Run("htmx requests get an HX-Redirect", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		form := url.Values{"email": {testEmail}, "password": {testPassword}}
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")

		rec := f.do(req, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, server.RouteDashboard, rec.Header().Get("HX-Redirect"))
	})
}

func TestSignup(t *testing.T) {
	t.Run("session issued immediately", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.postForm(server.RouteAuthSignup, url.Values{"email": {testEmail}, "password": {testPassword}})

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.NotNil(t, findCookie(liveCookies(rec), session.KeyAccessToken))
	})

	t.Run("confirmation required", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.postForm(server.RouteAuthSignup, url.Values{"email": {testConfirmEmail}, "password": {testPassword}})

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Contains(t, rec.Header().Get("Location"), "message=")
		require.Empty(t, liveCookies(rec))
	})
}

func TestRequireSession(t *testing.T) {
	t.Run("anonymous request is redirected", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.get(server.RouteDashboard, nil)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/unauthorized?return_to=%2Fdashboard", rec.Header().Get("Location"))
	})

	t.Run("authorized request passes", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		cookies := f.login(t)

		rec := f.get(server.RouteDashboard, cookies)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "Signed in as user-1@example.com via password")
		require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))

		rec = f.get(server.RouteProfile, cookies)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "Jane Doe")
		require.Contains(t, rec.Body.String(), "https://cdn.example.com/jane.png")
	})

	t.Run("expired session is redirected and cleared", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		cookies := f.login(t)

		f.now = f.now.Add(2 * time.Hour)
		rec := f.get(server.RouteDashboard, cookies)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.True(t, strings.HasPrefix(rec.Header().Get("Location"), server.RouteUnauthorized))
		require.ElementsMatch(t, []string{session.KeyAccessToken, session.KeyRefreshToken, session.KeyProfile}, deletedCookies(rec))
	})

	t.Run("tampered cookie is rejected", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		cookies := f.login(t)
		for _, c := range cookies {
			if c.Name == session.KeyAccessToken {
				c.Value = "x" + c.Value
			}
		}

		rec := f.get(server.RouteDashboard, cookies)
		require.Equal(t, http.StatusSeeOther, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t, nil)
	cookies := f.login(t)

	page := f.get(server.RouteDashboard, cookies)
	require.Equal(t, http.StatusOK, page.Code)
	require.Contains(t, page.Body.String(), `<form method="post" action="/auth/logout">`)

	rec := f.post(server.RouteAuthLogout, cookies)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, server.RouteIndex, rec.Header().Get("Location"))
	require.ElementsMatch(t, []string{session.KeyAccessToken, session.KeyRefreshToken, session.KeyProfile}, deletedCookies(rec))
	require.Equal(t, []string{f.authAPI.accessToken}, f.authAPI.signedOut())

	t.Run("get is not allowed", func(t *testing.T) {
		cookies := f.login(t)
		before := len(f.authAPI.signedOut())
		rec := f.get(server.RouteAuthLogout, cookies)
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		require.Empty(t, deletedCookies(rec))
		require.Len(t, f.authAPI.signedOut(), before)
	})

	t.Run("anonymous logout is a no-op", func(t *testing.T) {
		before := len(f.authAPI.signedOut())
		rec := f.post(server.RouteAuthLogout, nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Empty(t, rec.Result().Cookies())
		require.Len(t, f.authAPI.signedOut(), before)
	})
}

func TestIndex(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec := f.get("/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `action="/auth/login"`)
	require.NotContains(t, rec.Body.String(), "/auth/oauth")

	rec = f.get("/", f.login(t))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Welcome back, Jane Doe")

	rec = f.get("/?error=Invalid+email+or+password", nil)
	require.Contains(t, rec.Body.String(), "Invalid email or password")

	rec = f.get("/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnauthorizedPage(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec := f.get(server.RouteUnauthorized+"?return_to=%2Fprofile", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "return_to=%2fprofile")
}

func TestSessionAPI(t *testing.T) {
	f := setupTestFixture(t, nil)

	var status server.SessionStatus
	rec := f.get(server.RouteAPISession, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.JSONEq(t, `{"authorized":false}`, rec.Body.String())

	rec = f.get(server.RouteAPISession, f.login(t))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Authorized)
	require.Equal(t, "password", status.Provenance)
	require.NotNil(t, status.ExpiresAt)
	require.True(t, status.ExpiresAt.Equal(f.now.Add(time.Hour)))
	require.NotNil(t, status.Profile)
	require.Equal(t, "Jane Doe", status.Profile.Name)
}

func TestOIDCRoutesNeedConfiguration(t *testing.T) {
	f := setupTestFixture(t, nil)

	require.Equal(t, http.StatusNotFound, f.get(server.RouteAuthOAuth, nil).Code)
	require.Equal(t, http.StatusNotFound, f.get(server.RouteCallback, nil).Code)
}

// testProvider serves the token endpoint of an OIDC provider
type testProvider struct {
	server *httptest.Server
	key    *rsa.PrivateKey

	mu    sync.Mutex
	nonce string
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &testProvider{key: key}
	p.server = httptest.NewServer(http.HandlerFunc(p.token))
	t.Cleanup(p.server.Close)
	return p
}

func (p *testProvider) setNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce = nonce
}

func (p *testProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != testCode {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	p.mu.Lock()
	nonce := p.nonce
	p.mu.Unlock()

	idToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
		"iss":     p.server.URL,
		"aud":     testClientID,
		"sub":     "oauth-user",
		"email":   "jane@example.com",
		"name":    "Jane Provider",
		"picture": "https://cdn.example.com/provider.png",
		"nonce":   nonce,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(p.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "opaque-provider-token",
		"token_type":    "Bearer",
		"refresh_token": "provider-refresh",
		"expires_in":    3600,
		"id_token":      idToken,
	})
}

func (p *testProvider) login() *oidclogin.Login {
	cfg := oauth2.Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{oidc.ScopeOpenID, "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.server.URL + "/authorize",
			TokenURL:  p.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&p.key.PublicKey}}
	return oidclogin.New(cfg, oidc.NewVerifier(p.server.URL, keySet, &oidc.Config{ClientID: testClientID}))
}

func TestOIDCLogin(t *testing.T) {
	p := newTestProvider(t)
	f := setupTestFixture(t, p.login())

	rec := f.get(server.RouteAuthOAuth+"?return_to=%2Fprofile", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, p.server.URL+"/authorize", authURL.Scheme+"://"+authURL.Host+authURL.Path)
	require.Equal(t, "S256", authURL.Query().Get("code_challenge_method"))
	state := authURL.Query().Get("state")
	require.Equal(t, 1, f.flows.Len())
	p.setNonce(authURL.Query().Get("nonce"))

	callback := server.RouteCallback + "?" + url.Values{"state": {state}, "code": {testCode}}.Encode()
	rec = f.get(callback, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, server.RouteProfile, rec.Header().Get("Location"))

	cookies := liveCookies(rec)
	require.NotNil(t, findCookie(cookies, session.KeyOAuthIdentifier))
	require.NotNil(t, findCookie(cookies, session.KeyRefreshToken))
	require.Nil(t, findCookie(cookies, session.KeyAccessToken))

	rec = f.get(server.RouteProfile, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Jane Provider")
	require.Contains(t, rec.Body.String(), "oauth-user")

	t.Run("state is single use", func(t *testing.T) {
		rec := f.get(callback, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		rec := f.get(server.RouteAuthOAuth, nil)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		p.setNonce("someone-else")

		rec = f.get(server.RouteCallback+"?"+url.Values{"state": {loc.Query().Get("state")}, "code": {testCode}}.Encode(), nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Empty(t, liveCookies(rec))
	})

	t.Run("provider error is reported", func(t *testing.T) {
		rec := f.get(server.RouteCallback+"?error=access_denied&error_description=denied", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("logout does not call the auth API for oauth sessions", func(t *testing.T) {
		before := len(f.authAPI.signedOut())
		rec := f.post(server.RouteAuthLogout, cookies)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Contains(t, deletedCookies(rec), session.KeyOAuthIdentifier)
		require.Len(t, f.authAPI.signedOut(), before)
	})
}

func TestNew_Validation(t *testing.T) {
	t.Setenv("ENV", "TEST")
	cfg, err := config.New()
	require.NoError(t, err)

	_, err = server.New(cfg, nil, nil, nil)
	require.Error(t, err)

	p := newTestProvider(t)
	_, err = server.New(cfg, authapi.New("http://localhost", "key"), p.login(), nil)
	require.Error(t, err)
}
