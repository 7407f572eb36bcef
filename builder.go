package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	internalflows "github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/session"
	"github.com/redis/go-redis/v9"
)

// timingEqualiserPassword is hashed once at build time; unknown-email logins
// verify against it.
const timingEqualiserPassword = "tokenauth-timing-equaliser"

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessionStore session.Store
	userProvider UserProvider
	auditSink    AuditSink
	hasher       password.Hasher
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for the default session store and the
// login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides the Redis session store, for example with a
// session.PostgresStore.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPasswordHasher overrides the hasher selected by Config.Password. It
// must verify the hashes stored by the UserProvider.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token timestamps and session expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, fmt.Errorf("%w: user provider required", ErrEngineNotReady)
	}
	if b.sessionStore == nil && b.redis == nil {
		return nil, fmt.Errorf("%w: redis client or session store required", ErrEngineNotReady)
	}
	if cfg.Security.EnableLoginThrottle && b.redis == nil {
		return nil, fmt.Errorf("%w: login throttle requires redis client", ErrEngineNotReady)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		logger:       logger,
		now:          now,
	}

	// -------- SESSION STORE --------
	engine.sessionStore = b.sessionStore
	if engine.sessionStore == nil {
		engine.sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, now)
	}

	if cfg.Security.EnableLoginThrottle {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.Session.RedisPrefix,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
			LoginCooldown:    cfg.Security.LoginCooldown,
		})
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     engine.auditDropped,
		Logger:     logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- PASSWORD --------
	hasher := b.hasher
	if hasher == nil {
		var err error
		hasher, err = cfg.Password.NewHasher()
		if err != nil {
			return nil, err
		}
	}
	engine.passwordHash = hasher
	dummyHash, err := hasher.Hash(timingEqualiserPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare timing hash: %w", err)
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.Secret),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.flows = engine.buildFlowDeps(dummyHash)

	b.built = true

	return engine, nil
}

// NewHasher builds the hasher selected by Algorithm. Build uses it when no
// hasher is supplied; user provisioning code uses it to hash new passwords.
func (cfg PasswordConfig) NewHasher() (password.Hasher, error) {
	if cfg.Algorithm == "bcrypt" {
		return password.NewBcrypt(cfg.BcryptCost)
	}
	return password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
}

func (e *Engine) buildFlowDeps(dummyHash string) internalflows.Deps {
	var (
		loginLimiter internalflows.LoginRateLimiter
		introLimiter internalflows.IntrospectionRateLimiter
	)
	if e.rateLimiter != nil {
		loginLimiter = e.rateLimiter
		introLimiter = e.rateLimiter
	}
	var needsRehash func(string) (bool, error)
	if up, ok := e.passwordHash.(password.Upgrader); ok {
		needsRehash = up.NeedsUpgrade
	}

	return internalflows.Deps{
		Login: internalflows.LoginDeps{
			AccessTTL:           e.config.JWT.AccessTTL,
			RefreshTTL:          e.config.JWT.RefreshTTL,
			Now:                 e.now,
			ClientIPFromContext: clientIPFromContext,
			GetUserByEmail: func(ctx context.Context, email string) (internalflows.LoginUser, error) {
				rec, err := e.userProvider.GetUserByEmail(ctx, email)
				if err != nil {
					return internalflows.LoginUser{}, err
				}
				return internalflows.LoginUser{
					ID:           rec.ID,
					Email:        rec.Email,
					Username:     rec.Username,
					PasswordHash: rec.PasswordHash,
					Role:         rec.Role,
				}, nil
			},
			VerifyPassword: e.passwordHash.Verify,
			NeedsRehash:    needsRehash,
			DummyHash:      dummyHash,
			IssueToken:     e.jwtManager.Issue,
			RateLimiter:    loginLimiter,
			SessionStore:   e.sessionStore,
			UserNotFound:   ErrUserNotFound,
			Warn:           e.warn,
		},
		Refresh: internalflows.RefreshDeps{
			AccessTTL:       e.config.JWT.AccessTTL,
			Now:             e.now,
			VerifyToken:     e.jwtManager.Verify,
			IssueToken:      e.jwtManager.Issue,
			SessionStore:    e.sessionStore,
			SessionNotFound: session.ErrNotFound,
			Warn:            e.warn,
		},
		Verify: internalflows.VerifyDeps{
			VerifyToken: e.jwtManager.Verify,
		},
		Logout: internalflows.LogoutDeps{
			SessionStore:    e.sessionStore,
			SessionNotFound: session.ErrNotFound,
			EmptySubject:    fmt.Errorf("%w: empty subject", ErrUnauthenticated),
		},
		Introspection: internalflows.IntrospectionDeps{
			SessionStore:      e.sessionStore,
			RateLimiter:       introLimiter,
			Now:               time.Now,
			EmptySubject:      fmt.Errorf("%w: empty subject", ErrUnauthenticated),
			EngineNotReadyErr: ErrEngineNotReady,
		},
	}
}
