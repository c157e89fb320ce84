// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wiregate/wiregate/internal/audit"
	"github.com/wiregate/wiregate/internal/auth"
	authpg "github.com/wiregate/wiregate/internal/auth/postgres"
	"github.com/wiregate/wiregate/internal/config"
	"github.com/wiregate/wiregate/internal/gateway"
	"github.com/wiregate/wiregate/internal/logging"
	"github.com/wiregate/wiregate/internal/observability"
	"github.com/wiregate/wiregate/internal/store"
	wgtls "github.com/wiregate/wiregate/internal/tls"
	"github.com/wiregate/wiregate/internal/users"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the message gateway",
		Long: `Start the gateway process which accepts persistent client connections,
issues session tokens, and routes token-gated resource messages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVar(&configFile, "config", "", "config file path")
	cmd.Flags().String("listen-addr", defaults.ListenAddr, "gateway TCP listen address")
	cmd.Flags().String("database-url", "", "PostgreSQL connection string")
	cmd.Flags().Int("hash-cost", defaults.HashCost, "password hash work factor")
	cmd.Flags().Duration("token-ttl", defaults.TokenTTL, "session token validity window")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().Bool("tls", false, "enable TLS on the gateway listener")
	cmd.Flags().String("tls-cert-file", "", "PEM certificate for the gateway listener")
	cmd.Flags().String("tls-key-file", "", "PEM private key for the gateway listener")
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")

	return cmd
}

// runServe wires the gateway together and blocks until shutdown.
func runServe(ctx context.Context, cfg config.Config) error {
	logging.SetDefault(logging.Options{
		Service: "wiregate",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
	})

	slog.Info("starting gateway",
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
		"token_ttl", cfg.TokenTTL.String(),
	)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database-url is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	slog.Info("database connected")

	hasher := auth.NewArgon2idHasher(cfg.HashCost)
	userRepo := authpg.NewUserRepository(pool)
	tokenRepo := authpg.NewTokenRepository(pool)

	authService, err := auth.NewService(userRepo, tokenRepo, hasher, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	userService, err := users.NewService(userRepo, hasher)
	if err != nil {
		return fmt.Errorf("failed to create user service: %w", err)
	}

	sink := audit.NewAsyncSink(audit.NewLogSink(slog.Default()), cfg.AuditBuffer)
	defer sink.Close()

	// Observability server is optional; without it the observers are no-ops.
	var obsServer *observability.Server
	dispatcherOpts := []gateway.DispatcherOption{
		gateway.WithAuditSink(sink),
		gateway.WithLogger(slog.Default()),
	}
	serverOpts := []gateway.ServerOption{
		gateway.WithServerLogger(slog.Default()),
	}

	if cfg.TLSEnabled() {
		tlsConf, err := wgtls.ServerConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to build TLS config: %w", err)
		}
		serverOpts = append(serverOpts, gateway.WithTLSConfig(tlsConf))
	}

	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool { return true })
		metrics := obsServer.Metrics()
		dispatcherOpts = append(dispatcherOpts, gateway.WithRequestObserver(func(channel, status string) {
			metrics.RequestsTotal.WithLabelValues(channel, status).Inc()
		}))
		dispatcherOpts = append(dispatcherOpts, gateway.WithAuthFailureObserver(func(reason string) {
			metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
		}))
		serverOpts = append(serverOpts, gateway.WithConnObserver(func() {
			metrics.ConnectionsTotal.Inc()
		}))
	}

	dispatcher, err := gateway.NewDispatcher(authService, users.Handlers(userService), dispatcherOpts...)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	server, err := gateway.NewServer(cfg.ListenAddr, dispatcher, serverOpts...)
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	if obsServer != nil {
		if _, err := obsServer.Start(); err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		<-serverErrCh
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("gateway server failed: %w", err)
		}
	case <-ctx.Done():
		<-serverErrCh
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}
