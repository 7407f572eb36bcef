// Command authd serves the tokenauth HTTP API.
//
// Configuration comes from the environment, optionally seeded from a .env
// file. Run with -migrate up|down to apply the Postgres schema and exit.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/httpapi"
	"github.com/MrEthical07/tokenauth/internal/db"
	"github.com/MrEthical07/tokenauth/internal/db/migrate"
	"github.com/MrEthical07/tokenauth/metrics/export/prometheus"
	"github.com/MrEthical07/tokenauth/permission"
	"github.com/MrEthical07/tokenauth/session"
	"github.com/MrEthical07/tokenauth/userstore"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	migrateDir := flag.String("migrate", "", "apply migrations (up or down) and exit")
	flag.Parse()

	cfg, err := loadConfig(*envFile)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	level, _ := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level, AddSource: true}))
	slog.SetDefault(logger)

	if *migrateDir != "" {
		if err := migrate.Run(cfg.DatabaseURL, *migrateDir); err != nil {
			logger.Error("migrate", "direction", *migrateDir, "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied", "direction", *migrateDir)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("authd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serverConfig, logger *slog.Logger) error {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.usesRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	hasher, err := engineCfg.Password.NewHasher()
	if err != nil {
		return err
	}

	builder := tokenauth.New().
		WithConfig(engineCfg).
		WithPasswordHasher(hasher).
		WithLogger(logger).
		WithAuditSink(tokenauth.NewSlogSink(logger.With("component", "audit")))
	if rdb != nil {
		builder = builder.WithRedis(rdb)
	}

	if cfg.SessionBackend == "postgres" {
		store := session.NewPostgresStore(pool, time.Now)
		builder = builder.WithSessionStore(store)
		go purgeSessions(ctx, store, cfg.SessionPurgeInterval, logger)
	}

	var seed func(context.Context, tokenauth.UserRecord) error
	if pool != nil {
		users := userstore.NewPostgres(pool)
		builder = builder.WithUserProvider(users)
		seed = users.Put
	} else {
		users := userstore.NewMemory()
		builder = builder.WithUserProvider(users)
		seed = func(_ context.Context, rec tokenauth.UserRecord) error { return users.Put(rec) }
	}

	if cfg.SeedEmail != "" {
		rec, err := userstore.NewRecord(hasher, cfg.SeedEmail, cfg.SeedUsername, cfg.SeedPassword, permission.MustParseRole(cfg.SeedRole))
		if err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
		switch err := seed(ctx, rec); {
		case errors.Is(err, userstore.ErrDuplicateEmail):
			logger.Info("seed user already present", "email", cfg.SeedEmail)
		case err != nil:
			return fmt.Errorf("seed user: %w", err)
		default:
			logger.Info("seed user created", "email", cfg.SeedEmail, "role", cfg.SeedRole)
		}
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("/auth/", httpapi.New(engine,
		httpapi.WithTransport(engineCfg.Transport),
		httpapi.WithLogger(logger),
	))
	mux.HandleFunc("GET /healthz", healthHandler(engine))
	if engineCfg.Metrics.Enabled {
		collector, err := prometheus.NewCollector(engine)
		if err != nil {
			return err
		}
		mux.Handle("GET /metrics", collector.Handler())
	}

	var handler http.Handler = mux
	if origins := cfg.corsOrigins(); len(origins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{
				engineCfg.Transport.AuthorizationHeader,
				engineCfg.Transport.RefreshHeader,
				"Content-Type",
			},
			ExposedHeaders:   []string{engineCfg.Transport.RenewedAccessHeader},
			AllowCredentials: true,
		}).Handler(mux)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", "addr", cfg.Addr, "session_backend", cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type healthResponse struct {
	Status       string `json:"status"`
	SessionStore bool   `json:"sessionStore"`
	RateLimiter  bool   `json:"rateLimiter"`
	LatencyMS    int64  `json:"latencyMs"`
}

func healthHandler(engine *tokenauth.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		h := engine.Health(ctx)
		res := healthResponse{
			Status:       "ok",
			SessionStore: h.SessionStoreAvailable,
			RateLimiter:  h.RateLimiterAvailable,
			LatencyMS:    h.Latency.Milliseconds(),
		}
		status := http.StatusOK
		if !h.Healthy() {
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func purgeSessions(ctx context.Context, store *session.PostgresStore, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}
