package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/acra-collector/internal/config"
)

func newCheckConfigCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validates the config file and prints it with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("invalid config %s: %w", *cfgFile, err)
			}
			printSummary(cmd.OutOrStdout(), *cfgFile, cfg.Redacted())
			return nil
		},
	}
}

func printSummary(w io.Writer, path string, cfg config.Config) {
	fmt.Fprintf(w, "config %s is valid\n", path)
	fmt.Fprintf(w, "  listen:       %s%s\n", cfg.ListenAddr(), cfg.ReportPath)
	fmt.Fprintf(w, "  mail:         %s -> %s\n", cfg.EmailFrom, cfg.EmailTo)
	fmt.Fprintf(w, "  smtp:         %s:%d (user %s, pass %s, timeout %s)\n",
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPTimeout())
	fmt.Fprintf(w, "  crash log:    %s\n", cfg.CrashLog)
	fmt.Fprintf(w, "  workers:      %d (queue depth %d)\n", cfg.Workers, cfg.QueueDepth)
}
