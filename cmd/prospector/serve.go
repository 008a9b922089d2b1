package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/orchestrator"
	"github.com/jonathan/prospector/internal/scheduler"
	"github.com/jonathan/prospector/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Starts the HTTP server with the batch orchestrator and the autonomous
scheduler. Requires DATABASE_URL and GEMINI_API_KEY. The scheduler cadence
loop is armed at startup but only runs when the persisted config is active.`,
	RunE: runServe,
}

var (
	servePort       int
	serveConfigPath string
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := resolveConfig(serveConfigPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	orch := orchestrator.New(nil, nil, database, "")
	comps, err := buildComponents(ctx, cfg, orch)
	if err != nil {
		return err
	}
	defer comps.close()

	orch.Runner = comps.pipeline
	orch.Directory = comps.directory
	orch.CatalogHash = comps.catalog.Fingerprint()
	if cfg.MaxConcurrent > 0 {
		orch.MaxConcurrent = cfg.MaxConcurrent
	}

	sched := &scheduler.Scheduler{
		Store: database,
		Agent: &scheduler.Agent{Store: database, Directory: comps.directory, LLM: comps.llm},
		Jobs:  orch,
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	srv, err := server.New(server.Config{Port: servePort}, orch, sched, database)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Printf("prospector serving on port %d (catalog %s)", servePort, comps.catalog.Fingerprint()[:12])
	return srv.Start()
}
