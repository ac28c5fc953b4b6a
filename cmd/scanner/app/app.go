package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/channel"
	"github.com/roman-kulish/fpv-interceptor/internal/registry"
	"github.com/roman-kulish/fpv-interceptor/internal/scanner"
	"github.com/roman-kulish/fpv-interceptor/internal/spectrum"
	"github.com/roman-kulish/fpv-interceptor/internal/storage"
	"github.com/roman-kulish/fpv-interceptor/internal/telemetry"
	"github.com/roman-kulish/fpv-interceptor/internal/tuner"
)

type closeFunc func() error

func nopClose() error { return nil }

// Job describes one scanner run
type Job struct {
	Mode      scanner.Mode
	Range     band.Range    // single sweep
	Frequency uint16        // monitor
	Duration  time.Duration // monitor, 0 runs until stopped
	Output    io.Writer     // report destination, nil skips the report
}

// Run executes the job on the configured receiver until it ends or ctx is
// cancelled. The detected signals are stored and reported at the end.
func Run(ctx context.Context, config *Config, job Job, logger *slog.Logger) (err error) {
	port, closePort, err := createReceiver(&config.Receiver, logger)
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}
	defer func() { err = errors.Join(err, closePort()) }()

	provider, closeProvider, err := createTelemetry(ctx, &config.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	defer func() { err = errors.Join(err, closeProvider()) }()

	sessionRange := config.Scan.Range()
	switch job.Mode {
	case scanner.ModeSingleSweep:
		sessionRange = job.Range
	case scanner.ModeMonitor:
		sessionRange = band.Range{Start: job.Frequency, End: job.Frequency}
	}

	var (
		store     storage.Store
		sessionID int64
	)
	if config.Storage.Enabled {
		var sqlite *storage.SqliteStore
		if sqlite, err = createStorage(&config.Storage); err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer func() { err = errors.Join(err, sqlite.Close()) }()

		store = sqlite
		sessionID, err = store.CreateSession(ctx, &spectrum.ScanSession{
			StartTime:      time.Now().UTC(),
			Mode:           job.Mode.String(),
			FrequencyStart: sessionRange.Start,
			FrequencyEnd:   sessionRange.End,
			Receiver:       string(config.Receiver.Type),
		}, config)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		logger.Info("session created", slog.Int64("session", sessionID))
	}

	reg := registry.New(registry.WithCapacity(config.Scan.MaxSignals))
	channels := channel.NewStore()

	status := &statusSink{logger: logger}
	if store != nil {
		status.samples = NewSampleRecorder(store, sessionID,
			WithMaxBatchSize(config.Storage.MaxBatchSize),
			WithRecorderLogger(logger),
		)
		status.samples.Start(ctx)
	}

	captures := NewCaptureRecorder(reg, provider, store, sessionID, logger)
	captures.Start(ctx)

	controller := scanner.NewController(port, channels, reg,
		scanner.WithLogger(logger.With(slog.String("mode", job.Mode.String()))),
		scanner.WithDwellTime(time.Duration(config.Scan.DwellTime)),
		scanner.WithStabilizationDelay(time.Duration(config.Scan.StabilizationDelay)),
		scanner.WithCyclePause(time.Duration(config.Scan.CyclePause)),
		scanner.WithStatusInterval(time.Duration(config.Scan.StatusInterval)),
		scanner.WithSweepRange(config.Scan.Range()),
		scanner.WithStatusSink(status),
		scanner.WithCaptureSink(captures),
	)

	result, runErr := runJob(ctx, controller, job)

	// the scan goroutine has finished, nothing records any more
	if status.samples != nil {
		status.samples.Close()
		logger.Info("samples stored", slog.Int64("count", status.samples.Stored()))
	}
	captures.Close()

	signals := reg.Signals()
	if store != nil {
		if err = storeDetections(context.WithoutCancel(ctx), store, sessionID, signals); err != nil {
			return errors.Join(runErr, fmt.Errorf("storing detections: %w", err))
		}
	}

	if job.Output != nil {
		PrintReport(job.Output, result, signals)
	}

	return runErr
}

func runJob(ctx context.Context, c *scanner.Controller, job Job) (scanner.Result, error) {
	var (
		h   *scanner.Handle
		err error
	)

	switch job.Mode {
	case scanner.ModeSingleSweep:
		h, err = c.StartSingleSweep(ctx, job.Range)
	case scanner.ModeContinuousSweep:
		h, err = c.StartContinuousSweep(ctx)
	case scanner.ModeMonitor:
		h, err = c.Monitor(ctx, job.Frequency, job.Duration)
	default:
		err = fmt.Errorf("unsupported mode %s", job.Mode)
	}
	if err != nil {
		return scanner.Result{}, err
	}

	return h.Wait()
}

// Probe checks the receiver: readiness, tuning to mhz and a few raw readings
func Probe(ctx context.Context, config *Config, mhz uint16, reads int, w io.Writer, logger *slog.Logger) (err error) {
	if err = band.Validate(mhz); err != nil {
		return err
	}

	port, closePort, err := createReceiver(&config.Receiver, logger)
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}
	defer func() { err = errors.Join(err, closePort()) }()

	fmt.Fprintf(w, "receiver %s ready: %t\n", config.Receiver.Type, port.IsReady())
	if !port.IsReady() {
		return tuner.ErrNotReady
	}

	if err = port.SetFrequency(mhz); err != nil {
		return err
	}
	fmt.Fprintf(w, "tuned to %s\n", formatFrequency(mhz))

	wait := func(d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}

	if err = wait(time.Duration(config.Scan.StabilizationDelay)); err != nil {
		return err
	}
	for i := range reads {
		fmt.Fprintf(w, "reading %d: %d\n", i+1, port.ReadStrength())
		if err = wait(time.Duration(config.Scan.DwellTime)); err != nil {
			return err
		}
	}

	return nil
}

func createReceiver(config *ReceiverConfig, logger *slog.Logger) (tuner.Port, closeFunc, error) {
	var (
		port   tuner.Port
		closer closeFunc = nopClose
	)

	switch config.Type {
	case ReceiverStub:
		port = tuner.NewStub(config.Seed)

	case ReceiverSimulated:
		port = tuner.NewSimulated(tuner.CarrierProfile(config.Noise, config.Carriers...))

	case ReceiverSerial:
		bridge, err := tuner.OpenBridge(config.SerialPort, config.BaudRate,
			tuner.WithBridgeLogger(logger),
			tuner.WithCalibration(config.Calibration),
		)
		if err != nil {
			return nil, nil, err
		}
		port = bridge
		closer = bridge.Close

	default:
		return nil, nil, NewConfigError(fmt.Sprintf("creating receiver: unknown type '%s'", config.Type))
	}

	if config.CallTimeout > 0 {
		port = tuner.WithTimeout(port, time.Duration(config.CallTimeout))
	}

	logger.Info("receiver ready", slog.String("type", string(config.Type)), slog.Bool("ready", port.IsReady()))
	return port, closer, nil
}

func createTelemetry(ctx context.Context, config *TelemetryConfig, logger *slog.Logger) (telemetry.Provider, closeFunc, error) {
	switch config.Mode {
	case "", TelemetryNone:
		return telemetry.None{}, nopClose, nil

	case TelemetryManual:
		return telemetry.NewStatic(config.Latitude, config.Longitude, config.Altitude), nopClose, nil

	case TelemetryGPSD:
		g, err := telemetry.DialGPSD(config.Address)
		if err != nil {
			return nil, nil, err
		}
		return g, func() error { g.Close(); return nil }, nil

	case TelemetryNMEA:
		n, err := telemetry.OpenNMEA(config.SerialPort, config.BaudRate, telemetry.WithNMEALogger(logger))
		if err != nil {
			return nil, nil, err
		}
		go func() {
			if err := n.Run(ctx); err != nil {
				logger.Error("GPS reader stopped", slog.Any("error", err))
			}
		}()
		return n, n.Close, nil

	default:
		return nil, nil, NewConfigError(fmt.Sprintf("creating telemetry: unknown mode '%s'", config.Mode))
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := config.DataDirectory
	if dbPath == "" {
		dbPath = defaultDataDirectory
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("fpv_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
