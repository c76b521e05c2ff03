package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/logging"
	"github.com/wesleyorama2/stampede/internal/scenario"
)

var version = "0.1.0"

// NewRootCmd builds the command tree. Scenarios declared in configuration
// files are registered into registry next to any registered in code.
func NewRootCmd(registry *scenario.Registry) *cobra.Command {
	root := &cobra.Command{
		Use:     "stampede",
		Short:   "A programmable load-testing engine",
		Version: version,
		Long: `Stampede drives virtual users through scripted scenarios against an
HTTP service at a controlled, ramping rate and reports per-step
latency and status statistics while the run is in progress.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "console", "Log format: console or json")
	root.PersistentFlags().String("log-file", "stderr", "Log destination: stderr, stdout or a file path")

	root.AddCommand(newRunCmd(registry))
	root.AddCommand(newValidateCmd())
	root.AddCommand(newScenariosCmd(registry))
	return root
}

// Execute runs the root command against the default scenario registry.
func Execute() error {
	return NewRootCmd(scenario.Default).Execute()
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	output, _ := cmd.Flags().GetString("log-file")
	return logging.New(logging.Options{Level: level, Format: format, Output: output})
}
