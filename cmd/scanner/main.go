package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/fpv-interceptor/cmd/scanner/app"
	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/scanner"
)

var logLevel slog.LevelVar

type options struct {
	configPath string
	logLevel   string
	store      bool
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(logger).ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger) *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:           "scanner",
		Short:         "Scan the 5.8 GHz FPV band for analog video transmitters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.store, "store", false, "persist the run into the data directory")

	root.AddCommand(
		newSweepCommand(&opts, logger),
		newScanCommand(&opts, logger),
		newMonitorCommand(&opts, logger),
		newProbeCommand(&opts, logger),
		newConfigCommand(),
	)

	return root
}

// loadConfig reads the configuration and applies the persistent flags
func loadConfig(opts *options, logger *slog.Logger) (*app.Config, error) {
	config, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file: %w", err)
	}

	if opts.logLevel != "" {
		config.Settings.LogLevel = opts.logLevel
	}
	if opts.store {
		config.Storage.Enabled = true
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}

	level, _ := config.Settings.Level()
	logLevel.Set(level)

	if opts.configPath != "" {
		logger.Debug("configuration loaded", slog.String("path", opts.configPath))
	}
	return config, nil
}

func newSweepCommand(opts *options, logger *slog.Logger) *cobra.Command {
	var start, end uint16

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep a frequency range once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(opts, logger)
			if err != nil {
				return err
			}

			r := config.Scan.Range()
			if cmd.Flags().Changed("start") {
				r.Start = start
			}
			if cmd.Flags().Changed("end") {
				r.End = end
			}

			return app.Run(cmd.Context(), config, app.Job{
				Mode:   scanner.ModeSingleSweep,
				Range:  r,
				Output: cmd.OutOrStdout(),
			}, logger)
		},
	}

	cmd.Flags().Uint16Var(&start, "start", band.MinFrequency, "first frequency in MHz")
	cmd.Flags().Uint16Var(&end, "end", band.MaxFrequency, "last frequency in MHz")

	return cmd
}

func newScanCommand(opts *options, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Sweep the configured range continuously until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(opts, logger)
			if err != nil {
				return err
			}

			return app.Run(cmd.Context(), config, app.Job{
				Mode:   scanner.ModeContinuousSweep,
				Output: cmd.OutOrStdout(),
			}, logger)
		},
	}
}

func parseFrequency(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}
	mhz := uint16(v)
	if err = band.Validate(mhz); err != nil {
		return 0, err
	}
	return mhz, nil
}

func newMonitorCommand(opts *options, logger *slog.Logger) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "monitor <frequency>",
		Short: "Watch one frequency for a video transmission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mhz, err := parseFrequency(args[0])
			if err != nil {
				return err
			}

			config, err := loadConfig(opts, logger)
			if err != nil {
				return err
			}

			return app.Run(cmd.Context(), config, app.Job{
				Mode:      scanner.ModeMonitor,
				Frequency: mhz,
				Duration:  duration,
				Output:    cmd.OutOrStdout(),
			}, logger)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this long, 0 runs until interrupted")

	return cmd
}

func newProbeCommand(opts *options, logger *slog.Logger) *cobra.Command {
	var (
		frequency string
		reads     int
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check the receiver and print a few raw readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mhz, err := parseFrequency(frequency)
			if err != nil {
				return err
			}

			config, err := loadConfig(opts, logger)
			if err != nil {
				return err
			}

			return app.Probe(cmd.Context(), config, mhz, reads, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVarP(&frequency, "frequency", "f", "5800", "frequency in MHz")
	cmd.Flags().IntVarP(&reads, "reads", "n", 5, "number of readings")

	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init <path>",
		Short: "Write the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := app.WriteConfig(args[0], app.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", args[0])
			return nil
		},
	})

	return cmd
}
