// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aura-dev/aura/internal/backend"
	"github.com/aura-dev/aura/internal/config"
	"github.com/aura-dev/aura/internal/gateway"
	"github.com/aura-dev/aura/internal/secrets"
	"github.com/aura-dev/aura/internal/server"
	"github.com/aura-dev/aura/internal/store"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the aura gateway",
		Long:  "Load configuration, wire the conversation store, negotiator, and gateway, and start the HTTP server.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if listen := viper.GetString("listen"); listen != "" {
		cfg.Listen = listen
	}

	// keyring:// values are resolved through the OS keyring; anything
	// else is used literally.
	apiKey, err := secrets.ResolveKeyringURI(secretStoreFactory(), cfg.Backend.APIKey)
	if err != nil {
		return fmt.Errorf("resolving backend API key: %w", err)
	}

	variants, err := backend.VariantsByName(cfg.Backend.Variants)
	if err != nil {
		return err
	}

	neg, err := backend.New(backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		APIKey:         apiKey,
		AttemptTimeout: cfg.Backend.AttemptTimeout,
		Variants:       variants,
	})
	if err != nil {
		return err
	}

	st := store.NewMemoryStore()
	defer func() { _ = st.Close() }()

	gw := gateway.New(st, neg, gateway.Config{
		HistoryWindow: cfg.Generation.HistoryWindow,
		CacheSize:     cfg.Generation.CacheSize,
	})
	defer gw.Close()

	srv, err := server.New(server.Config{
		ListenAddr:     cfg.Listen,
		CORSOrigins:    cfg.CORSOrigins,
		RevealInterval: cfg.Reveal.Interval,
	})
	if err != nil {
		return err
	}

	srv.RegisterServices(&server.Services{
		Gateway:   gw,
		Lifecycle: gateway.NewLifecycle(gw),
		Metrics:   neg.Metrics,
		Defaults: backend.Tunables{
			Temperature: cfg.Generation.Temperature,
			TopP:        cfg.Generation.TopP,
			TopK:        cfg.Generation.TopK,
			MaxTokens:   cfg.Generation.MaxTokens,
		}.WithDefaults(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting aura",
		"listen", cfg.Listen,
		"backend", cfg.Backend.BaseURL,
		"variants", len(variants),
	)

	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	slog.Info("aura stopped")
	return nil
}
