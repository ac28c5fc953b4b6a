package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/channel"
	"github.com/roman-kulish/fpv-interceptor/internal/registry"
	"github.com/roman-kulish/fpv-interceptor/internal/tuner"
)

// recorder is a StatusSink and CaptureSink collecting every notification
type recorder struct {
	mu       sync.Mutex
	messages []string
	samples  int
	captures []uint16
}

func (r *recorder) OnStatus(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recorder) OnRSSISample(uint8, uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples++
}

func (r *recorder) OnSignalDetected(mhz uint16, _ uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = append(r.captures, mhz)
}

func (r *recorder) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) captured() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint16(nil), r.captures...)
}

type fixture struct {
	port     *tuner.Simulated
	store    *channel.Store
	registry *registry.Registry
	sink     *recorder
	ctrl     *Controller
}

func newFixture(profile tuner.Profile, options ...func(*Controller)) *fixture {
	f := &fixture{
		port:     tuner.NewSimulated(profile),
		store:    channel.NewStore(),
		registry: registry.New(),
		sink:     &recorder{},
	}

	opts := []func(*Controller){
		WithDwellTime(0),
		WithStabilizationDelay(0),
		WithCyclePause(0),
		WithStatusSink(f.sink),
		WithCaptureSink(f.sink),
	}

	f.ctrl = NewController(f.port, f.store, f.registry, append(opts, options...)...)
	return f
}

func populated(store *channel.Store) int {
	n := 0
	for mhz := range band.Full().Frequencies() {
		snap, _ := store.Snapshot(mhz)
		n += snap.History.Populated()
	}
	return n
}

func TestSingleSweepEndToEnd(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15, tuner.Carrier{Frequency: 5800, Level: 70}))

	result, err := f.ctrl.SingleSweep(context.Background(), band.Full())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Outcome != Completed {
		t.Errorf("Expected outcome completed, got %s", result.Outcome)
	}
	if result.Steps != band.ChannelCount {
		t.Errorf("Expected %d steps, got %d", band.ChannelCount, result.Steps)
	}

	signals := f.ctrl.DetectedSignals()
	if len(signals) != 1 {
		t.Fatalf("Expected exactly one registry entry, got %d: %+v", len(signals), signals)
	}
	if s := signals[0]; s.Frequency != 5800 || s.RSSI != 70 {
		t.Errorf("Expected entry (5800, 70), got (%d, %d)", s.Frequency, s.RSSI)
	}

	// a single reading never passes the composite score
	if got := f.sink.captured(); len(got) != 0 {
		t.Errorf("Expected no capture, got %v", got)
	}

	if s := f.ctrl.Session(); s.Mode != ModeIdle || s.Running {
		t.Errorf("Expected idle session after sweep, got %+v", s)
	}
}

func TestSingleSweepRangeValidation(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15))

	for _, r := range []band.Range{
		{Start: 5900, End: 5800},
		{Start: 5700, End: 5800},
		{Start: 5800, End: 6001},
	} {
		if _, err := f.ctrl.StartSingleSweep(context.Background(), r); !errors.Is(err, band.ErrOutOfRange) {
			t.Errorf("%s: Expected ErrOutOfRange, got %v", r, err)
		}
	}

	if f.ctrl.IsRunning() {
		t.Error("Expected controller to stay idle")
	}
}

func TestSweepSkipsTuneFailure(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15))
	f.port.FailOn(5801, errors.New("bus error"))

	result, err := f.ctrl.SingleSweep(context.Background(), band.Range{Start: 5800, End: 5803})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Steps != 3 || result.TuneFailures != 1 {
		t.Errorf("Expected 3 steps and 1 tune failure, got %+v", result)
	}

	snap, _ := f.store.Snapshot(5801)
	if snap.History.Populated() != 0 {
		t.Error("Expected no sample recorded on the failed channel")
	}
	if !f.sink.contains("tune failed at 5801 MHz") {
		t.Error("Expected tune failure to be reported")
	}
}

func TestAlreadyRunning(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15), WithDwellTime(5*time.Millisecond))

	h, err := f.ctrl.StartContinuousSweep(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err = f.ctrl.StartSingleSweep(context.Background(), band.Full()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	if _, err = f.ctrl.Monitor(context.Background(), 5800, 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	if s := f.ctrl.Session(); s.Mode != ModeContinuousSweep || !s.Running {
		t.Errorf("Expected running continuous sweep to be unaffected, got %+v", s)
	}

	f.ctrl.Stop()
	if result, _ := h.Wait(); result.Outcome != Stopped {
		t.Errorf("Expected outcome stopped, got %s", result.Outcome)
	}

	// idle again once the handle reports done
	h, err = f.ctrl.StartSingleSweep(context.Background(), band.Range{Start: 5800, End: 5800})
	if err != nil {
		t.Fatalf("Expected restart to succeed, got %v", err)
	}
	_, _ = h.Wait()
}

func TestStopLatency(t *testing.T) {
	const dwell = 20 * time.Millisecond

	f := newFixture(tuner.CarrierProfile(15),
		WithDwellTime(dwell),
		WithStabilizationDelay(5*time.Millisecond))

	h, err := f.ctrl.StartContinuousSweep(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	requested := time.Now()
	if !f.ctrl.Stop() {
		t.Fatal("Expected an active scan to stop")
	}

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected scan to stop")
	}

	if elapsed := time.Since(requested); elapsed > dwell+50*time.Millisecond {
		t.Errorf("Expected stop within one dwell interval, took %v", elapsed)
	}

	result, _ := h.Wait()
	if result.Steps == 0 {
		t.Error("Expected some steps before stop")
	}

	// every counted step recorded its reading, no step was left half done
	if n := populated(f.store); n != result.Steps {
		t.Errorf("Expected %d recorded samples, got %d", result.Steps, n)
	}

	if f.ctrl.Stop() {
		t.Error("Expected stop on an idle controller to report false")
	}
}

func TestContextCancellationStops(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15), WithDwellTime(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	h, err := f.ctrl.StartContinuousSweep(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	cancel()
	result, err := h.Wait()
	if err != nil || result.Outcome != Stopped {
		t.Errorf("Expected clean stop, got %s, %v", result.Outcome, err)
	}
}

func TestContinuousSweepPasses(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15),
		WithSweepRange(band.Range{Start: 5800, End: 5802}),
		WithCyclePause(time.Millisecond),
		WithStatusInterval(0))

	h, err := f.ctrl.StartContinuousSweep(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !f.sink.contains("pass 3 complete") {
		select {
		case <-deadline:
			h.Stop()
			t.Fatal("Expected three passes")
		case <-time.After(time.Millisecond):
		}
	}

	h.Stop()
	result, _ := h.Wait()

	if result.Passes < 3 {
		t.Errorf("Expected at least 3 passes, got %d", result.Passes)
	}
	if !f.sink.contains("readings") {
		t.Error("Expected periodic status summaries")
	}

	snap, _ := f.store.Snapshot(5801)
	if snap.History.Populated() < 3 {
		t.Errorf("Expected readings from every pass, got %d", snap.History.Populated())
	}
}

func TestMonitorTimedOut(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15), WithDwellTime(5*time.Millisecond))

	h, err := f.ctrl.Monitor(context.Background(), 5800, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	result, err := h.Wait()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Outcome != TimedOut {
		t.Errorf("Expected outcome timed-out, got %s", result.Outcome)
	}
	if result.Steps == 0 {
		t.Error("Expected monitor to take readings")
	}
	if tuned := f.port.Tuned(); len(tuned) != 1 || tuned[0] != 5800 {
		t.Errorf("Expected a single tune to 5800, got %v", tuned)
	}
}

func TestMonitorDetects(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15, tuner.Carrier{Frequency: 5800, Level: 70}),
		WithDwellTime(2*time.Millisecond))

	h, err := f.ctrl.Monitor(context.Background(), 5800, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	result, _ := h.Wait()
	if result.Outcome != Completed || result.Detections == 0 {
		t.Fatalf("Expected completed monitor with detections, got %+v", result)
	}

	s, ok := f.registry.Get(5800)
	if !ok || !s.VideoDetected || s.Artifact == "" {
		t.Errorf("Expected video entry with artifact, got %+v", s)
	}
	if got := f.sink.captured(); len(got) == 0 || got[0] != 5800 {
		t.Errorf("Expected capture on 5800, got %v", got)
	}
	if !f.sink.contains("5800 MHz: rssi 70") {
		t.Error("Expected monitor status")
	}
}

func TestMonitorRecordsVideoOnly(t *testing.T) {
	// steady carrier above the threshold without a video pattern
	f := newFixture(tuner.CarrierProfile(15, tuner.Carrier{Frequency: 5800, Level: 55}),
		WithDwellTime(2*time.Millisecond))

	h, err := f.ctrl.Monitor(context.Background(), 5800, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	result, _ := h.Wait()
	if result.Outcome != TimedOut || result.Detections != 0 {
		t.Fatalf("Expected timed-out monitor without detections, got %+v", result)
	}
	if result.Steps == 0 {
		t.Error("Expected monitor to take readings")
	}
	if n := f.registry.Len(); n != 0 {
		t.Errorf("Expected no registry entry, got %+v", f.registry.Signals())
	}
}

func TestMonitorStop(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15), WithDwellTime(5*time.Millisecond))

	h, err := f.ctrl.Monitor(context.Background(), 5800, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	h.Stop()

	if result, _ := h.Wait(); result.Outcome != Stopped {
		t.Errorf("Expected outcome stopped, got %s", result.Outcome)
	}
}

func TestMonitorErrors(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15))

	if _, err := f.ctrl.Monitor(context.Background(), 6001, time.Second); !errors.Is(err, band.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if populated(f.store) != 0 {
		t.Error("Expected store to be unchanged")
	}

	f.port.FailOn(5800, errors.New("bus error"))
	h, err := f.ctrl.Monitor(context.Background(), 5800, time.Second)
	if err != nil {
		t.Fatalf("Expected start to succeed, got %v", err)
	}

	result, err := h.Wait()
	if !errors.Is(err, tuner.ErrTuneFailed) {
		t.Errorf("Expected ErrTuneFailed, got %v", err)
	}
	if result.Outcome != Failed {
		t.Errorf("Expected outcome failed, got %s", result.Outcome)
	}
}

func TestRegistryFullDoesNotStopScan(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(80))
	f.ctrl.registry = registry.New(registry.WithCapacity(2))

	result, err := f.ctrl.SingleSweep(context.Background(), band.Range{Start: 5800, End: 5804})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Steps != 5 {
		t.Errorf("Expected 5 steps, got %d", result.Steps)
	}
	if n := f.ctrl.registry.Len(); n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
	if !f.sink.contains("registry full") {
		t.Error("Expected capacity to be reported")
	}
}

func TestChannelStats(t *testing.T) {
	f := newFixture(tuner.CarrierProfile(15, tuner.Carrier{Frequency: 5800, Level: 70}))

	empty, err := f.ctrl.ChannelStats(5800)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if empty != (ChannelStats{Frequency: 5800}) {
		t.Errorf("Expected zero stats, got %+v", empty)
	}

	for range 5 {
		if _, err = f.ctrl.SingleSweep(context.Background(), band.Range{Start: 5799, End: 5801}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	stats, _ := f.ctrl.ChannelStats(5800)
	if stats.Samples != 5 || stats.Current != 70 || stats.Min != 70 || stats.Max != 70 || stats.Avg != 70 {
		t.Errorf("Expected five readings of 70, got %+v", stats)
	}
	if stats.Stability != 100 || stats.Trend != 50 {
		t.Errorf("Expected stability 100 and trend 50, got %+v", stats)
	}

	all, _ := f.ctrl.BandStats(band.Full())
	if len(all) != 3 {
		t.Errorf("Expected 3 channels with samples, got %d", len(all))
	}

	if _, err = f.ctrl.ChannelStats(5724); !errors.Is(err, band.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}
