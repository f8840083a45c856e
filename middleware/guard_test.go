package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/account/memory"
	"github.com/MrEthical07/storeauth/cache"
	"github.com/MrEthical07/storeauth/cookiecrypt"
	"github.com/MrEthical07/storeauth/password"
)

const testPassword = "@Abc123123"

func newEngine(t *testing.T) (*storeauth.Engine, *memory.Repository) {
	t.Helper()
	key, err := cookiecrypt.GenerateKey()
	require.NoError(t, err)
	cfg := storeauth.DefaultConfig()
	cfg.CipherKey = key
	cfg.ActionTokenSecret = "middleware-test-secret"
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Audit.Enabled = false

	repo := memory.New()
	engine, err := storeauth.New().WithConfig(cfg).WithAccounts(repo).WithCache(cache.NewMemory()).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, repo
}

func signedInCookie(t *testing.T, engine *storeauth.Engine, email string) *http.Cookie {
	t.Helper()
	ctx := context.Background()
	_, err := engine.SignUp(ctx, storeauth.SignUpRequest{Username: "u", Email: email, Password: testPassword})
	require.NoError(t, err)
	res, err := engine.SignIn(ctx, storeauth.SignInRequest{Email: email, Password: testPassword})
	require.NoError(t, err)
	return &http.Cookie{Name: engine.SessionCookieName(), Value: res.Session.Cookie}
}

func recordErr(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("X-Error", storeauth.PublicMessage(err))
	w.WriteHeader(storeauth.KindOf(err).HTTPStatus())
}

func serve(engine *storeauth.Engine, reqs []Requirement, cookie *http.Cookie) (*httptest.ResponseRecorder, storeauth.Identity) {
	var seen storeauth.Identity
	h := Identify(engine, recordErr)(Guard(recordErr, reqs...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestGuardRejectsAnonymous(t *testing.T) {
	engine, _ := newEngine(t)

	rec, _ := serve(engine, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("Set-Cookie"))
}

func TestGuardAdmitsSession(t *testing.T) {
	engine, _ := newEngine(t)
	cookie := signedInCookie(t, engine, "jane@example.com")

	rec, id := serve(engine, []Requirement{RequireActive()}, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, id.Authenticated())
	assert.Equal(t, "jane@example.com", id.Profile.Email)
}

func TestIdentifyClearsStaleCookie(t *testing.T) {
	engine, _ := newEngine(t)

	rec, _ := serve(engine, nil, &http.Cookie{Name: engine.SessionCookieName(), Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, engine.SessionCookieName(), cleared[0].Name)
	assert.Less(t, cleared[0].MaxAge, 0)
}

func TestRequireVerified(t *testing.T) {
	engine, _ := newEngine(t)
	cookie := signedInCookie(t, engine, "jane@example.com")

	rec, _ := serve(engine, []Requirement{RequireVerified()}, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, storeauth.ErrEmailNotVerified.Message, rec.Header().Get("X-Error"))
}

func TestRequireRole(t *testing.T) {
	engine, _ := newEngine(t)
	cookie := signedInCookie(t, engine, "jane@example.com")

	rec, _ := serve(engine, []Requirement{RequireRole(account.RoleManager)}, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(engine, []Requirement{RequireRole(account.RoleManager, account.RoleCustomer)}, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIdentifyDropsSessionOfInactiveAccount(t *testing.T) {
	for _, status := range []account.Status{account.Suspended, account.Disabled} {
		t.Run(status.String(), func(t *testing.T) {
			engine, repo := newEngine(t)
			cookie := signedInCookie(t, engine, "jane@example.com")
			snap, err := repo.SnapshotByEmail(context.Background(), "jane@example.com")
			require.NoError(t, err)
			// the status changes behind the engine's back so the session survives the sweep
			require.NoError(t, repo.UpdateStatus(context.Background(), snap.ID, status))

			rec, id := serve(engine, []Requirement{RequireActive()}, cookie)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, id.Authenticated())
			cleared := rec.Result().Cookies()
			require.Len(t, cleared, 1)
			assert.Less(t, cleared[0].MaxAge, 0)

			rec, _ = serve(engine, nil, cookie)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireActiveStatusMapping(t *testing.T) {
	check := RequireActive()
	cases := map[account.Status]error{
		account.Active:    nil,
		account.Suspended: storeauth.ErrPermissionDenied,
		account.Disabled:  storeauth.ErrAccountDisabled,
	}
	for status, want := range cases {
		err := check(storeauth.Identity{Profile: account.Profile{Status: status}})
		assert.Equal(t, want, err, status.String())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:443"
	assert.Equal(t, "198.51.100.4", ClientIP(req))
	req.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", ClientIP(req))
}

func TestSetSessionCookieAttributes(t *testing.T) {
	engine, _ := newEngine(t)
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, engine, storeauth.Session{Cookie: "v"})

	c := rec.Result().Cookies()
	require.Len(t, c, 1)
	assert.True(t, c[0].HttpOnly)
	assert.Equal(t, "/", c[0].Path)
	assert.False(t, c[0].Secure)
	assert.Equal(t, int(engine.SessionLifetime().Seconds()), c[0].MaxAge)
}
