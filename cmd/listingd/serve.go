package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/listingd/internal/app"
	"github.com/MrSnakeDoc/listingd/internal/config"
	"github.com/MrSnakeDoc/listingd/internal/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation engine and the operator HTTP API",
		Long: "serve connects to Redis, resumes pending work, runs the batch workers and " +
			"exposes the operator API. Configuration comes from LISTINGD_* environment " +
			"variables and an optional .env file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			log := logger.New(cfg.LogLevel, cfg.PrettyLog)
			defer func() { _ = log.Sync() }()

			a, err := app.New(context.Background(), cfg, log)
			if err != nil {
				log.Error("❌ listingd failed to start", logger.Error(err))
				return fmt.Errorf("start: %w", err)
			}
			return a.Run()
		},
	}
}
