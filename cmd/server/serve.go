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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/pledgeledger/internal/auth"
	"github.com/mmynk/pledgeledger/internal/config"
	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/ledger"
	"github.com/mmynk/pledgeledger/internal/metrics"
	"github.com/mmynk/pledgeledger/internal/middleware"
	"github.com/mmynk/pledgeledger/internal/service"
	"github.com/mmynk/pledgeledger/internal/storage/sqlite"
	"github.com/mmynk/pledgeledger/pkg/logging"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Connect RPC server",
	Long: `Start the plan, payment and pledge RPC services over HTTP/2 cleartext,
with prometheus metrics at /metrics.

Examples:
  pledgeledger serve
  pledgeledger serve --port 9090 --config pledgeledger.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	logger := logging.Setup(cfg.Log.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	logger.Info("Storage initialized", "database", cfg.Database.Path)

	resolverOpts := []fx.Option{fx.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			// The cache is optional; lookups fall through to the store.
			logger.Warn("Redis unavailable, rate cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			resolverOpts = append(resolverOpts, fx.WithCache(fx.NewRedisCache(client, cfg.Redis.RateTTL)))
			logger.Info("Rate cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.RateTTL)
		}
	}
	rates := fx.NewResolver(fx.NewBreakerStore(store, cfg.Breaker(), logger), resolverOpts...)
	engine := ledger.NewEngine(store, rates, cfg.Ledger(), logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	interceptors, err := buildInterceptors(cfg, logger)
	if err != nil {
		return err
	}
	opts := connect.WithInterceptors(interceptors...)

	mux := http.NewServeMux()
	mux.Handle(service.NewPlanServiceHandler(service.NewPlanService(engine), opts))
	mux.Handle(service.NewPaymentServiceHandler(service.NewPaymentService(engine), opts))
	mux.Handle(service.NewPledgeServiceHandler(service.NewPledgeService(store), opts))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	handler := h2c.NewHandler(corsMiddleware(mux), &http2.Server{})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Connect server starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// buildInterceptors orders auth before logging so log lines carry the caller.
func buildInterceptors(cfg *config.Config, logger *slog.Logger) ([]connect.Interceptor, error) {
	logInterceptor := middleware.LoggingInterceptor(logger)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("No JWT secret configured, requests are unauthenticated")
		return []connect.Interceptor{logInterceptor}, nil
	}

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if cfg.Auth.Required {
		return []connect.Interceptor{middleware.RequireAuth(jwtManager), logInterceptor}, nil
	}
	return []connect.Interceptor{middleware.OptionalAuth(jwtManager), logInterceptor}, nil
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if service.IsProcedure(r.URL.Path) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
			w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms, "+service.FieldHeader)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
