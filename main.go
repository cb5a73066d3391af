// linesight - natural-language Q&A over industrial downtime logs.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/linesight/internal/analysis"
	"github.com/jeranaias/linesight/internal/config"
	"github.com/jeranaias/linesight/internal/llm"
	"github.com/jeranaias/linesight/internal/orchestrator"
	"github.com/jeranaias/linesight/internal/planner"
	"github.com/jeranaias/linesight/internal/retrieval"
	"github.com/jeranaias/linesight/internal/server"
	"github.com/jeranaias/linesight/internal/store"
	"github.com/jeranaias/linesight/internal/synthesis"
	"github.com/jeranaias/linesight/internal/temporal"
	"github.com/jeranaias/linesight/internal/vector"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.linesight/config.toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}
	conversationStore, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer conversationStore.Close()
	log.Printf("STORE_OPEN | path=%s", dbPath)

	completionClient := llm.NewClient(cfg.Completion.BaseURL, cfg.Completion.APIKey).
		WithTimeout(time.Duration(cfg.Completion.TimeoutSecs) * time.Second).
		WithMaxRetries(cfg.Completion.MaxRetries)

	vectorClient := vector.NewClientWithConfig(&vector.ClientConfig{
		BaseURL: cfg.Vector.BaseURL,
		Timeout: time.Duration(cfg.Vector.TimeoutSecs) * time.Second,
	})

	engine := orchestrator.NewEngine(
		planner.NewGenerator(completionClient, cfg.Completion.PlannerModel).WithLogger(log.Default()),
		temporal.NewClock(time.Now).WithLogger(log.Default()),
		retrieval.NewEngine(vectorClient, cfg.Vector.DowntimeCollection, cfg.Vector.KnownIssueCollection),
		analysis.NewEngine(),
		synthesis.NewSynthesizer(completionClient, cfg.Completion.SynthesisModel).WithLogger(log.Default()),
		conversationStore,
	).
		WithMaxSteps(cfg.Agent.MaxSteps).
		WithHistoryTurns(cfg.Agent.HistoryTurns).
		WithLogger(log.Default())

	srv := server.NewServer(cfg, engine, conversationStore).WithVectorHealth(vectorClient)

	// Shut down cleanly on interrupt.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("SIGNAL_RECEIVED | signal=%v", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
