package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/scenario"
)

func newScenariosCmd(registry *scenario.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List registered scenarios and their step trees",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				if err := scenario.RegisterConfig(registry, cfg); err != nil {
					return err
				}
			}

			names := registry.Names()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scenarios registered")
				return nil
			}

			built, err := registry.Build(args...)
			if err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("tree")
			for _, sc := range built {
				fmt.Fprintf(cmd.OutOrStdout(), "%s", sc.Name)
				if sc.Description != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " - %s", sc.Description)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				if verbose {
					dsl.Print(cmd.OutOrStdout(), sc.Root)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file with declarative scenarios")
	cmd.Flags().BoolP("tree", "t", false, "Print each scenario's step tree")
	return cmd
}
