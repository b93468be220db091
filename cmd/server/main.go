package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "rugsfun",
		Short:         "Custodial token vault",
		Long:          "Runs and inspects the custodial token vault: a program-derived authority holding one pooled account per asset type.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the environment is read")

	rootCmd.AddCommand(
		newServeCmd(&envFile),
		newDeriveCmd(&envFile),
		newMigrateCmd(&envFile),
	)

	return rootCmd
}
