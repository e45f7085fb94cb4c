package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/cashledger/internal/auth"
	"github.com/mmynk/cashledger/internal/config"
	"github.com/mmynk/cashledger/internal/metrics"
	"github.com/mmynk/cashledger/internal/middleware"
	"github.com/mmynk/cashledger/internal/service"
	"github.com/mmynk/cashledger/internal/settlement"
	"github.com/mmynk/cashledger/internal/storage"
	"github.com/mmynk/cashledger/internal/storage/postgres"
	"github.com/mmynk/cashledger/internal/storage/sqlite"
	"github.com/mmynk/cashledger/pkg/ledgerapi"
	"github.com/mmynk/cashledger/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := cfg.Level()
	logging.Setup(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "driver", cfg.Database.Driver)

	m := metrics.New(prometheus.DefaultRegisterer)
	handler := newHandler(serverDeps{
		store:   store,
		engine:  settlement.NewEngine(store, m),
		jwt:     auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		metrics: m,
		limiter: middleware.NewOperatorLimiter(cfg.Limits.RPS, cfg.Limits.Burst, ledgerapi.IsMutation),
	})

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		// Wrap with h2c for HTTP/2 without TLS (required for Connect)
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Connect server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, db config.DatabaseConfig) (storage.Store, error) {
	switch db.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, db.URL)
	case config.DriverSQLite:
		return sqlite.New(db.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}

type serverDeps struct {
	store   storage.Store
	engine  *settlement.Engine
	jwt     *auth.JWTManager
	metrics *metrics.Metrics
	limiter *middleware.OperatorLimiter
}

// newHandler wires the RPC service, health and metrics endpoints.
func newHandler(deps serverDeps) http.Handler {
	mux := http.NewServeMux()

	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(deps.jwt),
		middleware.LoggingInterceptor(deps.metrics),
		deps.limiter.Interceptor(),
	)
	path, handler := ledgerapi.NewSettlementServiceHandler(service.NewSettlementService(deps.engine), interceptors)
	mux.Handle(path, handler)

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.store.Ping(ctx); err != nil {
			slog.Warn("Health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return loggingMiddleware(corsMiddleware(mux))
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for the back-office UI
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
