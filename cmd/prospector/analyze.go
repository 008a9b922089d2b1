package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/prospector/internal/observability"
	"github.com/jonathan/prospector/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <company>",
	Short: "Analyze a single company end-to-end",
	Long: `Resolves a company by ticker, CIK or name, fetches its latest annual
filing, mines pain points, matches them against the product catalog and
prints the generated pitch.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeConfigPath string
	analyzeCatalog    string
	analyzeVerbose    bool
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeConfigPath, "config", "", "Path to config.json file")
	analyzeCmd.Flags().StringVarP(&analyzeCatalog, "catalog", "c", "", "Path to product catalog JSON (default catalog.json)")
	analyzeCmd.Flags().BoolVarP(&analyzeVerbose, "verbose", "v", false, "Print each stage artifact")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := resolveConfig(analyzeConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("catalog") {
		cfg.Catalog = analyzeCatalog
	}

	comps, err := buildComponents(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer comps.close()

	outcome := comps.pipeline.Run(ctx, "", args[0])

	printer := observability.NewPrinter(os.Stdout)
	switch outcome.Status {
	case pipeline.StatusDisambiguation:
		fmt.Printf("%q matched %d companies, be more specific:\n", args[0], len(outcome.Candidates))
		for _, c := range outcome.Candidates {
			fmt.Printf("  %-8s %-12s %s\n", c.Ticker, c.CIK, c.Name)
		}
		return nil
	case pipeline.StatusFailed:
		if outcome.Result != nil && outcome.Result.Company.Name != "" {
			printer.PrintCompany(&outcome.Result.Company, outcome.Result.Document)
		}
		return fmt.Errorf("analysis failed at %s: %v", outcome.Stage, outcome.Err)
	}

	result := outcome.Result
	printer.PrintCompany(&result.Company, result.Document)
	if analyzeVerbose {
		printer.PrintPainPoints(result.Pains)
		printer.PrintMatches(result.Matches)
	}
	printer.PrintPitch(result.Pitch)
	printer.PrintSummary(result)

	return nil
}
