package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/acra-collector/internal/config"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the crash report collector",
		Long: `Loads the config file, starts the HTTP listener and the worker pool,
and runs until SIGINT or SIGTERM. In-flight reports are finished before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run collector: %w", err)
			}
			return nil
		},
	}
}
