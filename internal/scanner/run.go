package scanner

import (
	"context"
	"sync"
	"time"
)

// Outcome is how a scan ended
type Outcome int

const (
	// Completed is a single sweep which covered its range, or a bounded
	// monitor which detected video before its duration elapsed
	Completed Outcome = iota

	// Stopped is a scan halted by Stop or context cancellation
	Stopped

	// TimedOut is a bounded monitor which elapsed without detecting video
	TimedOut

	// Failed is a scan ended by an error
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case TimedOut:
		return "timed-out"
	default:
		return "failed"
	}
}

// Result summarises a finished scan
type Result struct {
	Outcome      Outcome
	Steps        int // readings taken
	Detections   int // steps with video detected
	TuneFailures int
	Passes       int // completed band passes
	Duration     time.Duration
}

// run is the cancellation token and completion state of one scan
type run struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	result Result
	err    error
}

func newRun() *run {
	return &run{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *run) stopped(ctx context.Context) bool {
	select {
	case <-r.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *run) finish(result Result, err error) {
	r.result = result
	r.err = err
	close(r.done)
}

// Handle is returned by the start calls: it tells when a scan has actually
// ended, as opposed to merely having been asked to stop.
type Handle struct {
	run *run
}

// Done is closed once the scan has ended
func (h *Handle) Done() <-chan struct{} {
	return h.run.done
}

// Stop requests the scan to stop without waiting
func (h *Handle) Stop() {
	h.run.requestStop()
}

// Wait blocks until the scan has ended and returns its result
func (h *Handle) Wait() (Result, error) {
	<-h.run.done
	return h.run.result, h.run.err
}
