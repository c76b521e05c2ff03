package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file without running it",
		Long: `Parse and validate a configuration file, then compile every declarative
scenario and check its step tree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			registry := scenario.NewRegistry()
			if err := scenario.RegisterConfig(registry, cfg); err != nil {
				return err
			}
			built, err := registry.Build(cfg.Run...)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d scenario(s), %d user(s), %s at up to %.1f rps\n",
				cfg.Name, len(built), cfg.Users.Count, cfg.Duration, cfg.RampUp.TargetRPS)
			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
