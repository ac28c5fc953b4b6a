package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/fpv-interceptor/cmd/heatmap/app"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newCommand(logger).ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}

func newCommand(logger *slog.Logger) *cobra.Command {
	config := app.NewConfig()

	var (
		format, theme, timeZone string
		minFreq, maxFreq        uint16
		minRSSI, maxRSSI        uint8
	)

	cmd := &cobra.Command{
		Use:           "heatmap",
		Short:         "Render the RSSI waterfall of a stored scan session",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config.Format = app.ImageFormat(format)
			config.Theme = app.ColorTheme(theme)

			if timeZone != "" {
				loc, err := time.LoadLocation(timeZone)
				if err != nil {
					return fmt.Errorf("invalid time zone: %w", err)
				}
				config.TimeZone = loc
			}

			flags := cmd.Flags()
			if flags.Changed("min-freq") {
				config.MinFrequency = &minFreq
			}
			if flags.Changed("max-freq") {
				config.MaxFrequency = &maxFreq
			}
			if flags.Changed("min-rssi") {
				config.MinRSSI = &minRSSI
			}
			if flags.Changed("max-rssi") {
				config.MaxRSSI = &maxRSSI
			}

			if err := config.Validate(); err != nil {
				return err
			}

			return app.Run(cmd.Context(), config, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&config.DBPath, "db", "", "Path to the database file")
	flags.Int64VarP(&config.SessionID, "session", "s", 1, "Session ID")
	flags.StringVarP(&config.OutputFile, "output", "o", "", "Path to the output file")
	flags.StringVarP(&format, "format", "f", string(app.ImagePNG), "Output image format. [png, jpeg]")
	flags.StringVar(&theme, "theme", string(app.ClassicTheme), "Colour theme. [classic, grayscale, jungle, thermal, marine]")
	flags.StringVar(&timeZone, "tz", "", "Time zone of the time scale, local by default")
	flags.Uint16Var(&minFreq, "min-freq", 0, "Lowest frequency to render in MHz")
	flags.Uint16Var(&maxFreq, "max-freq", 0, "Highest frequency to render in MHz")
	flags.Uint8Var(&minRSSI, "min-rssi", 0, "Manual lower colour bound")
	flags.Uint8Var(&maxRSSI, "max-rssi", 0, "Manual upper colour bound")
	flags.IntVar(&config.CellWidth, "cell-width", config.CellWidth, "Pixels per channel")
	flags.IntVar(&config.CellHeight, "cell-height", config.CellHeight, "Pixels per pass")
	flags.BoolVar(&config.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")

	return cmd
}
