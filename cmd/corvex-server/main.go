// Command corvex-server serves a workspace store over HTTP.
//
// Usage:
//
//	corvex-server [serve]
//	corvex-server token -subject NAME [-ttl 24h]
//
// Configuration is read from the environment (LISTEN_ADDR, STORE_BACKEND,
// LOCAL_STORE_PATH, JWT_SECRET, ...).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/corvex/corvex/internal/api"
	"github.com/corvex/corvex/internal/auth"
	"github.com/corvex/corvex/internal/config"
	"github.com/corvex/corvex/internal/events"
	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/metrics"
	"github.com/corvex/corvex/internal/protocol"
	"github.com/corvex/corvex/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(2)
	}

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		serve(cfg)
	case "token":
		if err := token(cfg, args); err != nil {
			fmt.Fprintln(os.Stderr, "token:", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want serve or token)\n", cmd)
		os.Exit(2)
	}
}

func token(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "", "Token subject (required)")
	ttl := fs.Duration("ttl", cfg.TokenTTL, "Token lifetime")
	fs.Parse(args)

	if *subject == "" {
		return errors.New("-subject is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	tok, claims, err := auth.New(cfg.JWTSecret).IssueToken(*subject, *ttl)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(protocol.TokenResponse{
		Token:     tok,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Unix(),
	})
}

func serve(cfg *config.Config) {
	if err := logging.Init(cfg.Logging()); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("corvex server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("store", cfg.StoreBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, cfg.Store())
	if err != nil {
		logging.Fatal("store init failed", zap.Error(err))
	}
	defer st.Close()

	var authHandler *auth.Auth
	if cfg.JWTSecret != "" {
		authHandler = auth.New(cfg.JWTSecret)
	} else {
		logging.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	broadcaster := events.NewBroadcaster()
	srv := api.NewServer(st, authHandler, broadcaster)

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end when ctx is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("graceful shutdown failed", zap.Error(err))
			httpServer.Close()
		}
		metricsServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}
