package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration document",
		Long:  `Parses the configuration, cross-checks it against the embedded schema, and runs semantic validation (DAG shape, window overlap, executables, state directory writability).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config valid: %d steps, fingerprint %s\n", len(cfg.Steps), cfg.Fingerprint)
			return nil
		},
	}
}
