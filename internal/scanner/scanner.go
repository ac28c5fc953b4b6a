// Package scanner drives the receiver across the band: single sweeps,
// continuous sweeps and fixed-frequency monitoring. One scan runs at a time
// on its own goroutine; queries and stop requests may be issued concurrently.
package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/channel"
	"github.com/roman-kulish/fpv-interceptor/internal/registry"
	"github.com/roman-kulish/fpv-interceptor/internal/rssi"
	"github.com/roman-kulish/fpv-interceptor/internal/tuner"
)

const (
	DefaultDwellTime          = 100 * time.Millisecond
	DefaultStabilizationDelay = 50 * time.Millisecond
	DefaultCyclePause         = 5 * time.Second
	DefaultStatusInterval     = 5 * time.Second

	// monitor status is emitted on a change larger than this or once per monitorReportInterval
	monitorReportDelta    = 5
	monitorReportInterval = time.Second
)

// ErrAlreadyRunning is returned when a scan is started while another is active
var ErrAlreadyRunning = errors.New("scan is already running")

// StatusSink receives best-effort progress notifications. Calls are made from
// the scan goroutine and must not block.
type StatusSink interface {
	OnStatus(message string)
	OnRSSISample(rssi uint8, mhz uint16)
}

// CaptureSink is notified when a video transmission is detected. Calls are
// made from the scan goroutine and must not block.
type CaptureSink interface {
	OnSignalDetected(mhz uint16, rssi uint8)
}

type nopSink struct{}

func (nopSink) OnStatus(string)                {}
func (nopSink) OnRSSISample(uint8, uint16)     {}
func (nopSink) OnSignalDetected(uint16, uint8) {}

// Mode is the state of the controller
type Mode int

const (
	ModeIdle Mode = iota
	ModeSingleSweep
	ModeContinuousSweep
	ModeMonitor
)

func (m Mode) String() string {
	switch m {
	case ModeSingleSweep:
		return "single-sweep"
	case ModeContinuousSweep:
		return "continuous-sweep"
	case ModeMonitor:
		return "monitor"
	default:
		return "idle"
	}
}

// Session describes the scan in progress, ModeIdle when none is
type Session struct {
	Mode      Mode
	Range     band.Range
	DwellTime time.Duration
	Running   bool
	Frequency uint16 // last stepped frequency
	Pass      int
	StartedAt time.Time
}

// WithLogger sets the logger of the controller
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithDwellTime sets the delay between steps
func WithDwellTime(d time.Duration) func(*Controller) {
	return func(c *Controller) {
		c.dwell = d
	}
}

// WithStabilizationDelay sets the delay between tuning and reading
func WithStabilizationDelay(d time.Duration) func(*Controller) {
	return func(c *Controller) {
		c.stabilization = d
	}
}

// WithCyclePause sets the pause between two passes of a continuous sweep
func WithCyclePause(d time.Duration) func(*Controller) {
	return func(c *Controller) {
		c.cyclePause = d
	}
}

// WithStatusInterval sets how often a continuous sweep emits a status summary
func WithStatusInterval(d time.Duration) func(*Controller) {
	return func(c *Controller) {
		c.statusInterval = d
	}
}

// WithSweepRange sets the range covered by continuous sweeps, the full band by default
func WithSweepRange(r band.Range) func(*Controller) {
	return func(c *Controller) {
		c.sweepRange = r
	}
}

// WithStatusSink sets the progress observer
func WithStatusSink(sink StatusSink) func(*Controller) {
	return func(c *Controller) {
		c.status = sink
	}
}

// WithCaptureSink sets the video capture collaborator
func WithCaptureSink(sink CaptureSink) func(*Controller) {
	return func(c *Controller) {
		c.capture = sink
	}
}

// WithClock sets the time source for timestamps, deadlines and status intervals
func WithClock(clock func() time.Time) func(*Controller) {
	return func(c *Controller) {
		c.clock = clock
	}
}

// Controller is the scan state machine
type Controller struct {
	port     tuner.Port
	store    *channel.Store
	registry *registry.Registry
	acquirer *rssi.Acquirer

	dwell          time.Duration
	stabilization  time.Duration
	cyclePause     time.Duration
	statusInterval time.Duration
	sweepRange     band.Range

	status  StatusSink
	capture CaptureSink
	clock   func() time.Time
	logger  *slog.Logger

	active  atomic.Bool
	mu      sync.Mutex
	session Session
	current *run
}

// NewController creates an idle controller over the given receiver and shared state
func NewController(port tuner.Port, store *channel.Store, reg *registry.Registry, options ...func(*Controller)) *Controller {
	c := &Controller{
		port:           port,
		store:          store,
		registry:       reg,
		dwell:          DefaultDwellTime,
		stabilization:  DefaultStabilizationDelay,
		cyclePause:     DefaultCyclePause,
		statusInterval: DefaultStatusInterval,
		sweepRange:     band.Full(),
		status:         nopSink{},
		capture:        nopSink{},
		clock:          time.Now,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(c)
	}

	c.acquirer = rssi.NewAcquirer(port, store, rssi.WithClock(c.clock))
	return c
}

// Stop requests the active scan to stop and reports whether one was active.
// The scan halts at its next step boundary; use the run's Handle to wait.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()

	if r == nil {
		return false
	}

	r.requestStop()
	return true
}

// IsRunning reports whether a scan is active
func (c *Controller) IsRunning() bool {
	return c.active.Load()
}

// Session returns a copy of the current session
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// DetectedSignals returns the registry contents in insertion order
func (c *Controller) DetectedSignals() []registry.DetectedSignal {
	return c.registry.Signals()
}

// start claims the controller and runs loop on a new goroutine
func (c *Controller) start(ctx context.Context, s Session, loop func(ctx context.Context, r *run) (Result, error)) (*Handle, error) {
	if !c.active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	r := newRun()

	s.Running = true
	s.DwellTime = c.dwell
	s.StartedAt = c.clock()

	c.mu.Lock()
	c.session = s
	c.current = r
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	logger := c.logger.With(slog.String("mode", s.Mode.String()), slog.String("range", s.Range.String()))

	go func() {
		defer cancel()

		logger.Info("scan started")

		result, err := loop(ctx, r)
		result.Duration = c.clock().Sub(s.StartedAt)

		if err != nil {
			logger.Error("scan failed", slog.Any("error", err))
		} else {
			logger.Info("scan finished",
				slog.String("outcome", result.Outcome.String()),
				slog.Int("steps", result.Steps),
				slog.Int("detections", result.Detections))
		}

		c.mu.Lock()
		c.session = Session{Mode: ModeIdle}
		c.current = nil
		c.mu.Unlock()

		c.active.Store(false)
		r.finish(result, err)
	}()

	return &Handle{run: r}, nil
}

func (c *Controller) setFrequency(mhz uint16, pass int) {
	c.mu.Lock()
	c.session.Frequency = mhz
	if pass > 0 {
		c.session.Pass = pass
	}
	c.mu.Unlock()
}

// sleep waits for d and reports false if the run was stopped meanwhile
func (c *Controller) sleep(ctx context.Context, r *run, d time.Duration) bool {
	if d <= 0 {
		return !r.stopped(ctx)
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-r.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
