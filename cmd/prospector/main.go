// Package main provides the entry point for the prospector CLI and API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "SEC filing pain-point prospector",
	Long:  "Prospector mines business pain points from SEC 10-K risk disclosures, matches them against a product catalog, and generates grounded outreach pitches.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
