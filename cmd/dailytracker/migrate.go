package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"daily-tracker/internal/config"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// Opening a store migrates it.
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			st.close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", cfg.StoreDriver)
			return nil
		},
	}
}
