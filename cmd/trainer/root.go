package main

import (
	"github.com/spf13/cobra"

	"github.com/AbdulmoneamAli/federated/pkg/logger"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	logOpts := logger.DefaultConfig()

	cmd := &cobra.Command{
		Use:     "trainer",
		Short:   "run federated learning simulation experiments",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindEnv("FED_", cmd); err != nil {
				return err
			}
			logger.SetLogrus(*logOpts)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logOpts.Level, "level", logOpts.Level,
		"set the logging level (can be one of: debug, info, warn, error, or fatal)")
	cmd.PersistentFlags().BoolVar(&logOpts.Color, "color", logOpts.Color, "enable colored output")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
