package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/acra-collector/internal/config"
	"github.com/JakeFAU/acra-collector/internal/logging"
	"github.com/JakeFAU/acra-collector/internal/server"
)

// App is what serve needs from the application. Tests swap in a fake.
type App interface {
	Run(ctx context.Context) error
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return server.Build(ctx, cfg, server.Options{})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "acra-collector",
		Short: "Collects ACRA crash reports, logs them and mails them to developers.",
		Long: `acra-collector receives crash reports posted by Android apps using ACRA.
Every report is appended to a local crash log and then forwarded by email
over an authenticated, encrypted SMTP connection.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "path to the JSON config file")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newCheckConfigCmd(&cfgFile))

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger, lerr := logging.New(false)
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "command execution failed: %v\n", err)
			os.Exit(1)
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
