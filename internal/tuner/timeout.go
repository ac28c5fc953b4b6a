package tuner

import (
	"fmt"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

// timeoutPort bounds every call of the wrapped port. A call which outlives the
// timeout keeps running in the background and holds the port busy; calls made
// while it is busy fail immediately.
type timeoutPort struct {
	port    Port
	timeout time.Duration
	busy    chan struct{}
}

// WithTimeout wraps the port so that no call blocks for longer than d. A timed
// out SetFrequency fails with ErrTuneFailed and ErrTimeout, a timed out
// ReadStrength reads 0 and a timed out IsReady reports false.
func WithTimeout(port Port, d time.Duration) Port {
	if d <= 0 {
		return port
	}

	return &timeoutPort{
		port:    port,
		timeout: d,
		busy:    make(chan struct{}, 1),
	}
}

func (t *timeoutPort) SetFrequency(mhz uint16) error {
	if err := band.Validate(mhz); err != nil {
		return err
	}

	err, ok := call(t, func() error { return t.port.SetFrequency(mhz) })
	if !ok {
		return fmt.Errorf("%w: %d MHz: %w", ErrTuneFailed, mhz, ErrTimeout)
	}
	return err
}

func (t *timeoutPort) ReadStrength() uint8 {
	v, ok := call(t, t.port.ReadStrength)
	if !ok {
		return 0
	}
	return v
}

func (t *timeoutPort) IsReady() bool {
	v, ok := call(t, t.port.IsReady)
	return ok && v
}

// call runs fn with the port's timeout and reports whether it completed
func call[T any](t *timeoutPort, fn func() T) (T, bool) {
	var zero T

	select {
	case t.busy <- struct{}{}:
	default:
		return zero, false
	}

	done := make(chan T, 1)
	go func() {
		v := fn()
		<-t.busy
		done <- v
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case v := <-done:
		return v, true
	case <-timer.C:
		return zero, false
	}
}
