package storeauth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/account/memory"
	"github.com/MrEthical07/storeauth/cache"
	"github.com/MrEthical07/storeauth/cookiecrypt"
	"github.com/MrEthical07/storeauth/password"
)

const testPassword = "@Abc123123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentLink struct {
	kind  string
	email string
	link  string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentLink
	err  error
}

func (n *captureNotifier) record(kind, email, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentLink{kind: kind, email: email, link: link})
	return nil
}

func (n *captureNotifier) SendEmailVerification(_ context.Context, email, link string) error {
	return n.record("verify", email, link)
}

func (n *captureNotifier) SendPasswordRecovery(_ context.Context, email, link string) error {
	return n.record("recover", email, link)
}

func (n *captureNotifier) SendReactivation(_ context.Context, email, link string) error {
	return n.record("reactivate", email, link)
}

func (n *captureNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

// lastToken returns the token query parameter of the latest link of kind.
func (n *captureNotifier) lastToken(t *testing.T, kind string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind != kind {
			continue
		}
		u, err := url.Parse(n.sent[i].link)
		if err != nil {
			t.Fatalf("parse link %q: %v", n.sent[i].link, err)
		}
		return u.Query().Get("token")
	}
	t.Fatalf("no %s link was sent", kind)
	return ""
}

type fakeProvider struct {
	name string

	mu         sync.Mutex
	identities map[string]OAuthIdentity
	err        error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, identities: make(map[string]OAuthIdentity)}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (OAuthIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return OAuthIdentity{}, p.err
	}
	ident, ok := p.identities[code]
	if !ok {
		return OAuthIdentity{}, errors.New("invalid_grant")
	}
	return ident, nil
}

func (p *fakeProvider) register(code string, ident OAuthIdentity) {
	p.mu.Lock()
	p.identities[code] = ident
	p.mu.Unlock()
}

func testConfig(t testing.TB) Config {
	t.Helper()
	key, err := cookiecrypt.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := DefaultConfig()
	cfg.CipherKey = key
	cfg.ActionTokenSecret = "test-action-token-secret"
	cfg.ClientURL = "http://localhost:3000"
	cfg.ServerURL = "http://localhost:8080"
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine   *Engine
	repo     *memory.Repository
	cache    cache.Client
	notifier *captureNotifier
	clock    *testClock
	google   *fakeProvider
	mr       *miniredis.Miniredis
}

type envOption func(*Config, *Builder)

func newTestEnv(t testing.TB, opts ...envOption) *testEnv {
	t.Helper()
	return buildTestEnv(t, cache.NewMemory(), nil, opts...)
}

// newRedisTestEnv runs the engine against miniredis instead of the
// in-process cache.
func newRedisTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return buildTestEnv(t, cache.NewRedis(rdb, "test:"), mr, opts...)
}

func buildTestEnv(t testing.TB, c cache.Client, mr *miniredis.Miniredis, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     memory.New(),
		cache:    c,
		notifier: &captureNotifier{},
		clock:    newTestClock(),
		google:   newFakeProvider("google"),
		mr:       mr,
	}
	cfg := testConfig(t)
	b := New().
		WithAccounts(env.repo).
		WithCache(env.cache).
		WithNotifier(env.notifier).
		WithOAuthProvider(env.google).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg, b)
		}
	}
	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func withConfig(fn func(*Config)) envOption {
	return func(cfg *Config, _ *Builder) { fn(cfg) }
}

// signUp registers a user and returns its id.
func (env *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()
	res, err := env.engine.SignUp(context.Background(), SignUpRequest{
		Username: "user",
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	return res.UserID
}

// verifiedUser registers a user and confirms its email.
func (env *testEnv) verifiedUser(t *testing.T, email string) string {
	t.Helper()
	id := env.signUp(t, email)
	if err := env.engine.VerifyEmail(context.Background(), env.notifier.lastToken(t, "verify")); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return id
}

func (env *testEnv) signIn(t *testing.T, email string) *SignInResult {
	t.Helper()
	res, err := env.engine.SignIn(context.Background(), SignInRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("SignIn(%s): %v", email, err)
	}
	return res
}

func (env *testEnv) snapshot(t *testing.T, id string) account.Snapshot {
	t.Helper()
	snap, err := env.repo.SnapshotByID(context.Background(), id)
	if err != nil {
		t.Fatalf("SnapshotByID: %v", err)
	}
	return snap
}

// enrollMFA runs setup and enable and returns the TOTP secret and the
// plaintext backup codes.
func (env *testEnv) enrollMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := env.engine.SetupMFA(ctx, userID)
	if err != nil {
		t.Fatalf("SetupMFA: %v", err)
	}
	c1, c2 := env.codePair(t, setup.Secret)
	if err := env.engine.EnableMFA(ctx, userID, c1, c2); err != nil {
		t.Fatalf("EnableMFA: %v", err)
	}
	return setup.Secret, setup.BackupCodes
}

// codePair returns the codes of the previous and current TOTP steps.
func (env *testEnv) codePair(t *testing.T, secret string) (string, string) {
	t.Helper()
	now := env.clock.Now()
	c1, err := env.engine.totp.Code(secret, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	c2, err := env.engine.totp.Code(secret, now)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	return c1, c2
}

func (env *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := env.engine.totp.Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	return c
}

func requireKind(t *testing.T, err error, want *Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %q, got %v", want.Message, err)
	}
}
