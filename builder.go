package storeauth

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
	"github.com/MrEthical07/storeauth/cache"
	"github.com/MrEthical07/storeauth/cookiecrypt"
	internalaudit "github.com/MrEthical07/storeauth/internal/audit"
	"github.com/MrEthical07/storeauth/internal/rate"
	"github.com/MrEthical07/storeauth/mfa"
	"github.com/MrEthical07/storeauth/password"
	"github.com/MrEthical07/storeauth/session"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config    Config
	accounts  account.Repository
	cache     cache.Client
	providers []OAuthProvider
	notifier  Notifier
	logger    *zap.Logger
	auditSink AuditSink
	registry  prometheus.Registerer
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. Build validates it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAccounts sets the system of record. Required.
func (b *Builder) WithAccounts(repo account.Repository) *Builder {
	b.accounts = repo
	return b
}

// WithCache sets the TTL store for sessions, MFA setup, OAuth state and rate
// counters. Required.
func (b *Builder) WithCache(c cache.Client) *Builder {
	b.cache = c
	return b
}

// WithOAuthProvider registers providers by Name. A later provider with the
// same name replaces an earlier one.
func (b *Builder) WithOAuthProvider(p ...OAuthProvider) *Builder {
	b.providers = append(b.providers, p...)
	return b
}

// WithNotifier sets the delivery channel for action-token links. Without
// one, links are only logged at debug level.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the engine logger. Default is a no-op logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetrics registers engine collectors on reg.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// WithClock overrides the time source, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine. An invalid cipher
// key yields a KindConfiguration error wrapping cookiecrypt.ErrInvalidKey.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, withCause(ErrInvalidConfig, errors.New("account repository required"))
	}
	if b.cache == nil {
		return nil, withCause(ErrInvalidConfig, errors.New("cache client required"))
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}

	cipher, err := cookiecrypt.New(cfg.CipherKey)
	if err != nil {
		return nil, withCause(ErrInvalidConfig, err)
	}
	tokens, err := actiontoken.NewIssuer([]byte(cfg.ActionTokenSecret), actiontoken.WithClock(now))
	if err != nil {
		return nil, withCause(ErrInvalidConfig, err)
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, withCause(ErrInvalidConfig, err)
	}

	providers := make(map[string]OAuthProvider, len(b.providers))
	for _, p := range b.providers {
		if p == nil || p.Name() == "" {
			return nil, withCause(ErrInvalidConfig, errors.New("oauth provider must have a name"))
		}
		providers[p.Name()] = p
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	metrics, err := NewMetrics(b.registry)
	if err != nil {
		return nil, withCause(ErrInvalidConfig, err)
	}

	engine := &Engine{
		config:     cfg,
		accounts:   b.accounts,
		cache:      b.cache,
		sessions:   session.NewStore(b.cache),
		pending:    mfa.NewPendingStore(b.cache),
		challenges: newMFALoginChallengeStore(b.cache),
		states:     newOAuthStateStore(b.cache),
		cipher:     cipher,
		tokens:     tokens,
		hasher:     hasher,
		totp:       mfa.TOTP{Issuer: cfg.MFA.Issuer},
		limiter:    rate.New(b.cache, rateConfig(cfg.RateLimit)),
		providers:  providers,
		notifier:   notifier,
		log:        log.Named("storeauth"),
		metrics:    metrics,
		now:        now,
	}

	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NewZapSink(log)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   criticalAuditEvents,
		OnDrop: func(ev internalaudit.Event) {
			metrics.AuditDropped(ev.Type)
		},
	}, sink)

	b.built = true

	return engine, nil
}

func rateConfig(c RateLimitConfig) rate.Config {
	conv := func(r RateRule) rate.Rule { return rate.Rule{Max: r.Max, Window: r.Window} }
	return rate.Config{
		SignIn:       conv(c.SignIn),
		SignInPerIP:  conv(c.SignInPerIP),
		Recovery:     conv(c.Recovery),
		Verification: conv(c.Verification),
		MFAFailures:  conv(c.MFAFailures),
	}
}
