// Command casesync keeps incidents in a Spira-style incident tracker in step
// with cases in a FogBugz-style case tracker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/casesync/casesync/internal/config"
	"github.com/casesync/casesync/internal/logging"
	"github.com/casesync/casesync/internal/telemetry"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	traceLog   bool
	jsonOutput bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	loader *config.Loader
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "casesync",
	Short: "casesync - incident/case tracker synchronization",
	Long: `casesync reconciles incidents in the local incident tracker with cases in
the remote case tracker. Each pass pushes newly created incidents as cases and
then pulls changed cases back into incidents.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		loader = config.NewLoader(configFile)
		for key, name := range map[string]string{"log.level": "log-level", "log.format": "log-format"} {
			if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
				if err := loader.BindFlag(key, f); err != nil {
					return err
				}
			}
		}
		var err error
		cfg, err = loader.Load()
		if err != nil {
			return err
		}

		logger = logging.Configure(logging.Config{
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			NoColor: os.Getenv("NO_COLOR") != "",
			Trace:   traceLog,
		})
		rootCtx = logging.WithLogger(rootCtx, logger)
		if cfg.File != "" {
			logger.Debug().Str("file", cfg.File).Msg("Loaded configuration")
		}

		if err := telemetry.Init(rootCtx, "casesync", Version); err != nil {
			logger.Warn().Err(err).Msg("Telemetry disabled")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(context.WithoutCancel(rootCtx))
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./casesync.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "Log format (auto, console, json)")
	rootCmd.PersistentFlags().BoolVar(&traceLog, "trace", false, "Verbose request tracing (forces debug level)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
