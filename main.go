package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"pmctrace/internal/config"
	"pmctrace/internal/logger"
)

var (
	version = "0.1.0"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.AppConfig
	log        log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pmctrace",
		Short: "Measure hardware counters for code regions across preemption and core migration.",
		Long: `pmctrace correlates region markers with the kernel's context switch and ` +
			`system call events to attribute hardware counter deltas to code regions, ` +
			`even when the measured thread is preempted or moved to another core.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if err := logger.ConfigureLogging(cfg.Logging); err != nil {
				return fmt.Errorf("failed to configure logging: %w", err)
			}
			a.cfg = cfg
			a.log = logger.NewLoggerWithContext("cli")
			a.log.Debug().Str("command", cmd.Name()).Str("version", version).Msg("Configuration loaded")
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"path to a TOML configuration file (default: $"+config.EnvConfigPath+")")

	root.AddCommand(
		a.countersCmd(),
		a.replayCmd(),
		a.runCmd(),
		a.configCmd(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
