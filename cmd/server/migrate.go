package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/piyushhsainii/rugs.fun/internal/adapter/repository/postgres"
	"github.com/piyushhsainii/rugs.fun/internal/config"
)

func newMigrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL ledger migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if cfg.DBConnStr == "" {
				return errors.New("DB_CONN_STR is required")
			}

			db, err := postgres.NewDB(cfg.DBConnStr)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
