package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/prospector/internal/config"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Hash an admin password for ADMIN_PASSWORD_HASH",
	Long: `Generates the bcrypt hash expected in the ADMIN_PASSWORD_HASH
environment variable. The mutating scheduler endpoints exchange this
password for a bearer token at POST /auth/token.`,
	Args: cobra.ExactArgs(1),
	RunE: runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(_ *cobra.Command, args []string) error {
	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return err
	}

	hash, err := passwordConfig.HashPassword(args[0])
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}
