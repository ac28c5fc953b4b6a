package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/fpv-interceptor/internal/registry"
	"github.com/roman-kulish/fpv-interceptor/internal/spectrum"
	"github.com/roman-kulish/fpv-interceptor/internal/storage"
	"github.com/roman-kulish/fpv-interceptor/internal/telemetry"
)

const (
	sampleQueueSize  = 1024
	captureQueueSize = 64
	flushInterval    = time.Second

	// DefaultCaptureHoldOff is the minimum time between two captures of one frequency
	DefaultCaptureHoldOff = 5 * time.Second
)

// statusSink logs progress notifications and forwards readings to the sample
// recorder when persistence is enabled
type statusSink struct {
	logger  *slog.Logger
	samples *SampleRecorder
}

func (s *statusSink) OnStatus(message string) {
	s.logger.Info(message)
}

func (s *statusSink) OnRSSISample(rssi uint8, mhz uint16) {
	s.logger.Debug("rssi sample", slog.Int("frequency", int(mhz)), slog.Int("rssi", int(rssi)))
	if s.samples != nil {
		s.samples.Record(mhz, rssi)
	}
}

// WithMaxBatchSize sets the maximum number of samples stored within a single
// database transaction
func WithMaxBatchSize(size int) func(*SampleRecorder) {
	return func(r *SampleRecorder) {
		if size > 0 {
			r.maxBatchSize = size
		}
	}
}

// WithRecorderLogger sets the logger of the sample recorder
func WithRecorderLogger(logger *slog.Logger) func(*SampleRecorder) {
	return func(r *SampleRecorder) {
		r.logger = logger
	}
}

// SampleRecorder batches RSSI readings into the store from its own goroutine.
// Record never blocks: readings are dropped while the queue is full.
type SampleRecorder struct {
	store        storage.Store
	sessionID    int64
	maxBatchSize int
	logger       *slog.Logger
	clock        func() time.Time

	points  chan spectrum.RSSIPoint
	done    chan struct{}
	dropped atomic.Int64
	stored  atomic.Int64
}

// NewSampleRecorder creates a recorder writing into the given session
func NewSampleRecorder(store storage.Store, sessionID int64, options ...func(*SampleRecorder)) *SampleRecorder {
	r := &SampleRecorder{
		store:        store,
		sessionID:    sessionID,
		maxBatchSize: defaultMaxBatchSize,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:        time.Now,
		points:       make(chan spectrum.RSSIPoint, sampleQueueSize),
		done:         make(chan struct{}),
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// Start runs the writer until Close
func (r *SampleRecorder) Start(ctx context.Context) {
	go r.run(context.WithoutCancel(ctx))
}

// Record queues a reading and reports whether it was accepted
func (r *SampleRecorder) Record(mhz uint16, rssi uint8) bool {
	select {
	case r.points <- spectrum.RSSIPoint{Timestamp: r.clock(), Frequency: mhz, RSSI: rssi}:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Close flushes the queued readings and stops the writer. It must not be
// called while readings are still being recorded.
func (r *SampleRecorder) Close() {
	close(r.points)
	<-r.done

	if n := r.dropped.Load(); n > 0 {
		r.logger.Warn("samples dropped", slog.Int64("count", n))
	}
}

// Stored returns the number of persisted readings
func (r *SampleRecorder) Stored() int64 {
	return r.stored.Load()
}

func (r *SampleRecorder) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]spectrum.RSSIPoint, 0, r.maxBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.StoreSamples(ctx, r.sessionID, batch); err != nil {
			r.logger.Error("storing samples", slog.Int("count", len(batch)), slog.Any("error", err))
		} else {
			r.stored.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case p, ok := <-r.points:
			if !ok {
				flush()
				return
			}
			batch = append(batch, p)
			if len(batch) >= r.maxBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// CaptureRecorder hands video detections to the capture pipeline: it makes
// sure the registry entry carries an artifact reference, tags the capture
// with the current position and stores it. A frequency is captured at most
// once per hold-off period.
type CaptureRecorder struct {
	registry  *registry.Registry
	telemetry telemetry.Provider
	store     storage.Store // nil when persistence is disabled
	sessionID int64
	holdOff   time.Duration
	logger    *slog.Logger
	clock     func() time.Time

	mu   sync.Mutex
	last map[uint16]time.Time

	captures chan spectrum.Capture
	done     chan struct{}
	count    atomic.Int64
}

// NewCaptureRecorder creates a capture recorder; store may be nil
func NewCaptureRecorder(reg *registry.Registry, provider telemetry.Provider, store storage.Store, sessionID int64, logger *slog.Logger) *CaptureRecorder {
	if provider == nil {
		provider = telemetry.None{}
	}
	return &CaptureRecorder{
		registry:  reg,
		telemetry: provider,
		store:     store,
		sessionID: sessionID,
		holdOff:   DefaultCaptureHoldOff,
		logger:    logger,
		clock:     time.Now,
		last:      make(map[uint16]time.Time),
		captures:  make(chan spectrum.Capture, captureQueueSize),
		done:      make(chan struct{}),
	}
}

// Start runs the writer until Close
func (r *CaptureRecorder) Start(ctx context.Context) {
	go r.run(context.WithoutCancel(ctx))
}

func (r *CaptureRecorder) OnSignalDetected(mhz uint16, rssi uint8) {
	now := r.clock()

	r.mu.Lock()
	if last, ok := r.last[mhz]; ok && now.Sub(last) < r.holdOff {
		r.mu.Unlock()
		return
	}
	r.last[mhz] = now
	r.mu.Unlock()

	var ref string
	if s, ok := r.registry.Get(mhz); ok {
		ref = s.Artifact
	}
	if ref == "" {
		ref = uuid.NewString()
		r.registry.AttachArtifact(mhz, ref)
	}

	c := spectrum.Capture{
		Timestamp: now,
		Frequency: mhz,
		RSSI:      rssi,
		Artifact:  ref,
		Telemetry: r.telemetry.Get(),
	}
	r.count.Add(1)

	attrs := []any{slog.Int("frequency", int(mhz)), slog.Int("rssi", int(rssi)), slog.String("artifact", ref)}
	if c.Telemetry.HasPosition() {
		attrs = append(attrs, slog.Float64("latitude", *c.Telemetry.Latitude), slog.Float64("longitude", *c.Telemetry.Longitude))
	}
	r.logger.Info("capture triggered", attrs...)

	select {
	case r.captures <- c:
	default:
		r.logger.Warn("capture queue full", slog.Int("frequency", int(mhz)))
	}
}

// Count returns the number of triggered captures
func (r *CaptureRecorder) Count() int64 {
	return r.count.Load()
}

// Close stores the queued captures and stops the writer
func (r *CaptureRecorder) Close() {
	close(r.captures)
	<-r.done
}

func (r *CaptureRecorder) run(ctx context.Context) {
	defer close(r.done)

	for c := range r.captures {
		if r.store == nil {
			continue
		}
		if _, err := r.store.StoreCapture(ctx, r.sessionID, &c); err != nil {
			r.logger.Error("storing capture", slog.Int("frequency", int(c.Frequency)), slog.Any("error", err))
		}
	}
}

// storeDetections snapshots the registry into the session
func storeDetections(ctx context.Context, store storage.Store, sessionID int64, signals []registry.DetectedSignal) error {
	detections := make([]spectrum.Detection, 0, len(signals))
	for _, s := range signals {
		d := spectrum.Detection{
			Frequency:     s.Frequency,
			RSSI:          s.RSSI,
			VideoDetected: s.VideoDetected,
			DetectedAt:    s.DetectedAt,
			LastSeen:      s.Timestamp,
		}
		if s.Artifact != "" {
			d.Artifact = &s.Artifact
		}
		detections = append(detections, d)
	}
	return store.StoreDetections(ctx, sessionID, detections)
}
