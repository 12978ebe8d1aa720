package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openpseudonym/idbroker/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "idbroker",
	Short: "Pseudonymous identity broker API server",
	Long: `idbroker lets authenticated subjects mint pseudonymous identities,
attach named claims to them, and grant other identities revocable read
access to specific claims through an explicit request/accept/deny workflow.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
