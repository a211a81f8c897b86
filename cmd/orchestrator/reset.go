package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/config"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/lock"
)

func newResetTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-today",
		Short: "Delete today's journal (test-only; refuses while an instance holds the lock)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Acquiring (and immediately releasing) the instance lock is how
			// we detect a live peer without duplicating its liveness check.
			l, err := lock.Acquire(cfg.Paths.InstanceLockFile())
			if err != nil {
				return err
			}
			if releaseErr := l.Release(); releaseErr != nil {
				return releaseErr
			}

			current := cfg.Paths.CurrentJournalFile()
			if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Println("today's journal removed")
			return nil
		},
	}
}
