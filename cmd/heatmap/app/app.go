package app

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	if _, err = os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer func() { err = errors.Join(err, store.Close()) }()

	wf, err := readWaterfall(ctx, store, config, logger)
	if err != nil {
		return err
	}

	renderer := NewWaterfallRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		CellWidth:     config.CellWidth,
		CellHeight:    config.CellHeight,
		Bounds:        config.rssiBounds(),
		NoAnnotations: config.NoAnnotations,
	})

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("channels", wf.Width()),
			slog.Int("passes", wf.Height()),
		))

	img, err := renderer.Render(wf)
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, out.Close()) }()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}

func readWaterfall(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) (*Waterfall, error) {
	var opts []storage.ReaderOption
	var filters []any
	if config.MinFrequency != nil && config.MaxFrequency != nil {
		opts = append(opts, storage.WithFreqRange(*config.MinFrequency, *config.MaxFrequency))
		filters = append(filters,
			slog.Int("minFreq", int(*config.MinFrequency)),
			slog.Int("maxFreq", int(*config.MaxFrequency)))
	}

	logger.Info("reader configuration", append(filters, slog.Int64("session", config.SessionID))...)

	iter, err := store.ReadPasses(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	wf := NewWaterfall()
	for iter.Next(ctx) {
		wf.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}

	detections, err := store.Detections(ctx, config.SessionID)
	if err != nil {
		return nil, fmt.Errorf("reading detections: %w", err)
	}
	wf.MarkDetections(detections)

	bounds := wf.Histogram.Bounds()
	logger.Info("finished reading passes",
		slog.Group("stats",
			slog.String("mode", iter.Session().Mode),
			slog.String("start", wf.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("end", wf.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.Int("passes", wf.Height()),
			slog.Int("detections", len(detections)),
			slog.Float64("minRSSI", bounds.Min),
			slog.Float64("maxRSSI", bounds.Max),
		))

	return wf, nil
}
