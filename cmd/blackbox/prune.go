package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackboxlabs/blackbox/internal/adapters/sqlite"
)

// pruneCmd removes conversation turns older than the retention window.
// Meant for a cron job on the device; the orchestrator itself never
// deletes history.
func pruneCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversation turns older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}

			store, err := sqlite.Open(sqlite.Options{
				Path: cfg.Database.Path,
				Argon2: sqlite.Argon2Params{
					Time:      uint32(cfg.Vault.Argon2Time),
					MemoryKiB: uint32(cfg.Vault.Argon2MemoryKiB),
					Parallel:  uint8(cfg.Vault.Argon2Parallel),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			deleted, err := store.PruneOldTurns(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("failed to prune turns: %w", err)
			}

			fmt.Printf("Deleted %d turns older than %d days\n", deleted, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "retention window in days")
	return cmd
}
