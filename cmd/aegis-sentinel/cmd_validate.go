package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghalamif/AegisSentinel/internal/agents"
	"github.com/ghalamif/AegisSentinel/pkg/sentinel"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load a configuration and build every agent without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := sentinel.LoadConfig(configPath)
			if err != nil {
				return err
			}
			built, errs := agents.BuildAll(cfg.AgentSpecs())
			out := cmd.OutOrStdout()
			for _, a := range built {
				meta := a.Describe()
				fmt.Fprintf(out, "ok    %-10s %s %s\n", a.ID(), meta.Name, meta.Version)
			}
			for _, err := range errs {
				fmt.Fprintf(out, "skip  %v\n", err)
			}
			if len(built) == 0 {
				return fmt.Errorf("%s: no agent could be built", configPath)
			}
			fmt.Fprintf(out, "config %s is valid: %d agents, %d skipped\n", configPath, len(built), len(errs))
			return nil
		},
	}
}
