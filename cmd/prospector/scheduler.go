package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/orchestrator"
	"github.com/jonathan/prospector/internal/scheduler"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Inspect and drive the autonomous scheduler",
}

var schedulerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one scheduling cycle now",
	Long: `Asks the decision agent to pick the next companies, runs the derived
batch job, and waits for the run to finish. Respects the persisted
scheduler config except for the active flag.`,
	RunE: runSchedulerRun,
}

var schedulerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent scheduler runs",
	RunE:  runSchedulerStatus,
}

var schedulerConfigPath string

func init() {
	schedulerCmd.PersistentFlags().StringVar(&schedulerConfigPath, "config", "", "Path to config.json file")
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
	rootCmd.AddCommand(schedulerCmd)
}

func runSchedulerRun(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := resolveConfig(schedulerConfigPath)
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

	sched := &scheduler.Scheduler{
		Store: database,
		Agent: &scheduler.Agent{Store: database, Directory: comps.directory, LLM: comps.llm},
		Jobs:  orch,
	}

	runID, err := sched.TriggerNow(ctx, db.TriggerManual)
	if err != nil {
		return err
	}
	fmt.Printf("Started scheduler run %s\n", runID)

	// The run executes in the background; poll the run record until it
	// reaches a terminal status.
	for {
		time.Sleep(2 * time.Second)
		run, err := database.GetSchedulerRun(ctx, runID)
		if err != nil {
			return err
		}
		if run == nil || run.Status == db.RunStatusRunning {
			continue
		}
		fmt.Printf("Run %s: considered %d, selected %d, analyzed %d, skipped %d, failed %d, %d tokens\n",
			run.Status, run.Considered, run.Selected, run.Analyzed, run.Skipped, run.Failed, run.TotalTokens)
		if run.Reasoning != nil {
			fmt.Printf("Reasoning: %s\n", *run.Reasoning)
		}
		if run.Status == db.RunStatusFailed && run.ErrorMessage != nil {
			return fmt.Errorf("scheduler run failed: %s", *run.ErrorMessage)
		}
		return nil
	}
}

func runSchedulerStatus(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := resolveConfig(schedulerConfigPath)
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

	schedCfg, err := database.GetSchedulerConfig(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Active: %v  Cadence: %dm  MaxPerRun: %d  Reanalyze after: %dd\n",
		schedCfg.Active, schedCfg.CadenceMinutes, schedCfg.MaxPerRun, schedCfg.ReanalyzeAfterDays)
	if schedCfg.NextRunAt != nil {
		fmt.Printf("Next run: %s\n", schedCfg.NextRunAt.Format(time.RFC3339))
	}

	runs, err := database.ListSchedulerRuns(ctx, 10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No scheduler runs recorded")
		return nil
	}

	fmt.Println("\nRecent runs:")
	for _, run := range runs {
		fmt.Printf("  %s  %-9s  %-9s  selected %d/%d  analyzed %d  %s\n",
			run.ID, run.Status, run.TriggeredBy, run.Selected, run.Considered,
			run.Analyzed, run.StartedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
