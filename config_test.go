package storeauth

import (
	"errors"
	"testing"

	"github.com/MrEthical07/storeauth/account/memory"
	"github.com/MrEthical07/storeauth/cache"
	"github.com/MrEthical07/storeauth/cookiecrypt"
)

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if KindOf(err) != KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateRejectsBadCipherKey(t *testing.T) {
	for _, key := range []string{"", "not base64!", "c2hvcnQ="} {
		cfg := testConfig(t)
		cfg.CipherKey = key
		err := cfg.Validate()
		if KindOf(err) != KindConfiguration {
			t.Fatalf("key %q: kind = %v", key, KindOf(err))
		}
		if !errors.Is(err, cookiecrypt.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey in chain, got %v", key, err)
		}
	}
}

func TestValidateRules(t *testing.T) {
	cases := map[string]func(*Config){
		"short secret":      func(c *Config) { c.ActionTokenSecret = "short" },
		"unknown env":       func(c *Config) { c.Env = "staging" },
		"relative client":   func(c *Config) { c.ClientURL = "/app" },
		"prod over http":    func(c *Config) { c.Env = EnvProduction },
		"zero lifetime":     func(c *Config) { c.Session.Lifetime = 0 },
		"no cookie name":    func(c *Config) { c.Session.CookieName = "" },
		"zero token ttl":    func(c *Config) { c.ActionTokens.ReActivate = 0 },
		"no issuer":         func(c *Config) { c.MFA.Issuer = "" },
		"zero state ttl":    func(c *Config) { c.OAuth.StateTTL = 0 },
		"weak argon2":       func(c *Config) { c.Password.Memory = 1024 },
		"rule sans window":  func(c *Config) { c.RateLimit.SignIn.Window = 0 },
		"audit sans buffer": func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
	}
	for name, mutate := range cases {
		cfg := testConfig(t)
		mutate(&cfg)
		if err := cfg.Validate(); KindOf(err) != KindConfiguration {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}

	cfg := testConfig(t)
	cfg.Env = EnvProduction
	cfg.ClientURL = "https://shop.example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid production config: %v", err)
	}
	if !cfg.Production() {
		t.Fatal("expected production")
	}
}

func TestBuildRequiresDependencies(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New().WithConfig(cfg).WithCache(cache.NewMemory()).Build(); KindOf(err) != KindConfiguration {
		t.Fatalf("missing accounts: %v", err)
	}
	if _, err := New().WithConfig(cfg).WithAccounts(memory.New()).Build(); KindOf(err) != KindConfiguration {
		t.Fatalf("missing cache: %v", err)
	}

	b := New().WithConfig(cfg).WithAccounts(memory.New()).WithCache(cache.NewMemory())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestBuildRejectsUnnamedProvider(t *testing.T) {
	_, err := New().
		WithConfig(testConfig(t)).
		WithAccounts(memory.New()).
		WithCache(cache.NewMemory()).
		WithOAuthProvider(newFakeProvider("")).
		Build()
	if KindOf(err) != KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
