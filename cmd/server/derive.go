package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/piyushhsainii/rugs.fun/internal/config"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/authority"
)

func newDeriveCmd(envFile *string) *cobra.Command {
	var mint, tokenProgram string

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the vault authority and, with --mint, its pool account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}

			auth, err := authority.NewDeriver(cfg.Program()).Vault()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "program:   %s\n", auth.ProgramID)
			fmt.Fprintf(out, "authority: %s\n", auth.Address)
			fmt.Fprintf(out, "bump:      %d\n", auth.Bump)

			if mint == "" {
				return nil
			}
			mintKey, err := solana.PublicKeyFromBase58(mint)
			if err != nil {
				return fmt.Errorf("invalid --mint: %w", err)
			}
			programKey, err := solana.PublicKeyFromBase58(tokenProgram)
			if err != nil {
				return fmt.Errorf("invalid --token-program: %w", err)
			}
			if !domain.IsSupportedTokenProgram(programKey) {
				return fmt.Errorf("token program %s is not supported", programKey)
			}

			pool, err := domain.AssociatedTokenAddress(auth.Address, mintKey, programKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "pool:      %s\n", pool)
			return nil
		},
	}

	cmd.Flags().StringVar(&mint, "mint", "", "asset mint address")
	cmd.Flags().StringVar(&tokenProgram, "token-program", solana.TokenProgramID.String(), "token program owning the mint")

	return cmd
}
