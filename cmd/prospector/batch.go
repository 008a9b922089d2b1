package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/orchestrator"
	"github.com/jonathan/prospector/internal/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch [company ...]",
	Short: "Analyze a batch of companies concurrently",
	Long: `Runs the analysis pipeline for several companies at once. Companies
are given explicitly as arguments, or selected from the directory with
--tier/--industry filters. Results are persisted when DATABASE_URL is set.`,
	RunE: runBatch,
}

var (
	batchConfigPath string
	batchTiers      []string
	batchIndustries []string
	batchLimit      int
	batchForce      bool
	batchConcurrent int
)

func init() {
	batchCmd.Flags().StringVar(&batchConfigPath, "config", "", "Path to config.json file")
	batchCmd.Flags().StringSliceVar(&batchTiers, "tier", nil, "Size tier filter (small|mid|large|mega), repeatable")
	batchCmd.Flags().StringSliceVar(&batchIndustries, "industry", nil, "Industry filter, repeatable")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "Maximum companies selected by a filter")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "Re-analyze even when a fresh analysis exists")
	batchCmd.Flags().IntVar(&batchConcurrent, "max-concurrent", 0, "Maximum companies analyzed in parallel")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := resolveConfig(batchConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-concurrent") {
		cfg.MaxConcurrent = batchConcurrent
	}

	req := &types.SubmitJobRequest{
		Companies:      args,
		Limit:          batchLimit,
		ForceReanalyze: batchForce,
	}
	if len(batchTiers) > 0 || len(batchIndustries) > 0 {
		req.Filter = &types.FilterSpec{SizeTiers: batchTiers, Industries: batchIndustries}
	}
	if err := req.Validate(); err != nil {
		return err
	}

	// Persistence is optional for CLI batches.
	var store orchestrator.Store
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		store = database
	}

	orch := orchestrator.New(nil, nil, store, "")
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

	jobID, err := orch.Submit(ctx, req)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		fmt.Printf("Submitted job %s for %d companies\n", jobID, len(args))
	} else {
		fmt.Printf("Submitted job %s for filtered selection\n", jobID)
	}

	job, err := orch.Wait(ctx, jobID)
	if err != nil {
		return err
	}

	for _, r := range job.Results {
		label := r.CompanyName
		if label == "" {
			label = r.Query
		}
		switch r.Status {
		case orchestrator.CompanyCompleted:
			fmt.Printf("  ok      %-30s %d tokens\n", label, r.TokensUsed)
		case orchestrator.CompanySkipped:
			fmt.Printf("  skipped %-30s fresh analysis exists\n", label)
		case orchestrator.CompanyDisambiguation:
			fmt.Printf("  ambig   %-30s %d candidates\n", label, len(r.Candidates))
		default:
			fmt.Printf("  failed  %-30s %s: %s\n", label, r.Stage, r.Error)
		}
	}

	fmt.Printf("Job %s: %d completed, %d failed, %d skipped, %d tokens\n",
		job.Status, job.Completed, job.Failed, job.Skipped, job.TotalTokens)
	if job.Status == orchestrator.StatusFailed {
		return fmt.Errorf("batch failed: %s", job.Error)
	}
	return nil
}
