package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/metamcp/metamcp/internal/adapter/outbound/memory"
	"github.com/metamcp/metamcp/internal/adapter/outbound/sqlite"
	"github.com/metamcp/metamcp/internal/authgate"
	"github.com/metamcp/metamcp/internal/baseurl"
	"github.com/metamcp/metamcp/internal/bootstrap"
	"github.com/metamcp/metamcp/internal/config"
	"github.com/metamcp/metamcp/internal/domain/auth"
	"github.com/metamcp/metamcp/internal/domain/endpoint"
	"github.com/metamcp/metamcp/internal/domain/namespace"
	"github.com/metamcp/metamcp/internal/domain/oauthstore"
	"github.com/metamcp/metamcp/internal/domain/ratelimit"
	"github.com/metamcp/metamcp/internal/domain/session"
	"github.com/metamcp/metamcp/internal/domain/upstream"
	"github.com/metamcp/metamcp/internal/errortracker"
	"github.com/metamcp/metamcp/internal/httpsurface"
	"github.com/metamcp/metamcp/internal/metrics"
	"github.com/metamcp/metamcp/internal/middleware"
	"github.com/metamcp/metamcp/internal/oauthserver"
	"github.com/metamcp/metamcp/internal/pool"
	"github.com/metamcp/metamcp/internal/transport"
)

var (
	serveDBPath        string
	serveBaseURL       string
	serveAllowedOrigin []string
	serveBootstrap     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aggregation server",
	Long: `serve starts the HTTP surface: every configured endpoint's SSE and
Streamable HTTP transports, the OAuth 2.1 authorization server, and the
well-known discovery documents, all behind the per-endpoint auth gate.

With no --db, upstream/namespace/endpoint state lives in memory only
and is lost on restart — useful for a quick trial run. Pass --db to persist
it in a SQLite file instead. OAuth clients, authorization codes and access
tokens are always held in memory, with or without --db, and are lost on
restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite file to persist servers/namespaces/endpoints in (default: in-memory, not persisted)")
	serveCmd.Flags().StringVar(&serveBaseURL, "base-url", "", "externally visible base URL override (e.g. https://mcp.example.com), otherwise derived per-request")
	serveCmd.Flags().StringSliceVar(&serveAllowedOrigin, "allowed-origin", nil, "Origin header values to accept (repeatable); DNS-rebinding protection is disabled when unset")
	serveCmd.Flags().StringVar(&serveBootstrap, "bootstrap", "", "YAML file of upstreams/namespaces/endpoints to seed on an empty store (no-op if the store is already populated is NOT checked - only use against a fresh --db)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	namespaces, upstreams, endpoints, oauthStore, closeDB, err := buildStores(ctx, logger)
	if err != nil {
		return err
	}
	if closeDB != nil {
		defer closeDB()
	}

	if serveBootstrap != "" {
		newID := func() string { return uuid.New().String() }
		if err := bootstrap.Load(ctx, serveBootstrap, upstreams, namespaces, endpoints, newID); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		logger.Info("metamcp: bootstrapped stores", "file", serveBootstrap)
	}

	sessionTimeout, err := time.ParseDuration(cfg.Server.SessionTimeout)
	if err != nil {
		return fmt.Errorf("parse server.session_timeout: %w", err)
	}

	tracker := errortracker.New(upstreams)
	cooldown := transport.NewCooldown()
	connPool := pool.New(upstreams, tracker, cooldown)
	defer connPool.CleanupAll()
	toolCache := upstream.NewToolCache()

	// Warm one idle connection for every upstream mapped ACTIVE in any namespace.
	if nsList, err := namespaces.List(ctx); err == nil {
		idleParams := make(map[string]upstream.Server)
		for _, ns := range nsList {
			for _, id := range ns.ActiveServerIDs(false) {
				if srv, err := upstreams.Get(ctx, id); err == nil {
					idleParams[id] = *srv
				}
			}
		}
		connPool.EnsureIdle(idleParams)
	}

	apiKeys := auth.NewAPIKeyService(memory.NewAuthStore())
	limiter := memory.NewRateLimiter()
	limiter.StartCleanup(ctx)
	sessions := session.NewSessionService(memory.NewSessionStore(), session.Config{Timeout: sessionTimeout})

	resolveBaseURL := baseurl.Resolver(serveBaseURL)

	gate := authgate.New(apiKeys, oauthStore, limiter, resolveBaseURL,
		authgate.WithLogger(logger),
		authgate.WithRateLimit(ratelimit.RateLimitConfig{Rate: 20, Burst: 20, Period: time.Minute}),
	)

	oauth := oauthserver.New(oauthStore, sessions, resolveBaseURL, oauthserver.WithLogger(logger))
	oauth.StartSweep(ctx)

	surface := httpsurface.NewServer(httpsurface.Deps{
		Endpoints:  endpoints,
		Namespaces: namespaces,
		Upstreams:  upstreams,
		Pool:       connPool,
		ToolCache:  toolCache,
		Gate:       gate,
		Logger:     logger,
	})

	registry := prometheus.NewRegistry()
	m := metrics.New(registry, connPool)

	rootMux := http.NewServeMux()
	oauth.RegisterRoutes(rootMux)
	rootMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	surfaceMux := http.NewServeMux()
	surface.RegisterRoutes(surfaceMux)
	rootMux.Handle("/metamcp/", http.StripPrefix("/metamcp", surfaceMux))

	// metrics.Middleware runs outermost to capture full request duration;
	// DNSRebindingProtection (when enabled) runs next so a rejected origin
	// is still counted, ahead of request-ID/real-IP enrichment.
	chain := []func(http.Handler) http.Handler{metrics.Middleware(m)}
	if len(serveAllowedOrigin) > 0 {
		chain = append(chain, middleware.DNSRebindingProtection(serveAllowedOrigin))
	}
	chain = append(chain, middleware.RequestID(logger), middleware.RealIP)
	handler := middleware.Chain(chain...)(http.Handler(rootMux))

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("metamcp: listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("metamcp: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return <-serveErr
}

// buildStores constructs the namespace/upstream/endpoint stores, backed by
// SQLite when --db is set and by the in-memory adapters otherwise, plus
// the OAuth store, which is in-memory in both cases. closeDB is nil in the
// in-memory case.
func buildStores(ctx context.Context, logger *slog.Logger) (namespace.Store, upstream.Store, endpoint.Store, oauthstore.Store, func(), error) {
	if serveDBPath == "" {
		logger.Warn("metamcp: no --db given, state is in-memory and will not survive a restart")
		return memory.NewNamespaceStore(), memory.NewUpstreamStore(), memory.NewEndpointStore(), memory.NewOAuthStore(), nil, nil
	}

	db, err := sqlite.Open(ctx, serveDBPath)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("open sqlite db: %w", err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Warn("metamcp: error closing sqlite db", "error", err)
		}
	}
	return sqlite.NewNamespaceStore(db), sqlite.NewUpstreamStore(db), sqlite.NewEndpointStore(db), memory.NewOAuthStore(), closeDB, nil
}

// parseLogLevel maps the config's string log level to an slog.Level,
// defaulting to Info on an unrecognized value.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
