// Command payflowctl is the operator CLI: reports, fraud analytics, DLQ handling and
// infrastructure diagnostics.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"payflow/internal/config"
	"payflow/internal/observability"
)

type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	c := &cli{logger: observability.SetupLogger("development")}

	rootCmd := &cobra.Command{
		Use:           "payflowctl",
		Short:         "Operator tooling for the payflow gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = observability.SetupLogger(cfg.App.Env)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", config.Path(), "path to config.yaml")

	rootCmd.AddCommand(
		c.reportCmd(),
		c.flaggedCmd(),
		c.dlqCmd(),
		c.doctorCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		c.logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
