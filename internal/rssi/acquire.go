// Package rssi reads the receiver, records the reading into the channel store
// and applies the trend correction used ahead of the detection threshold.
package rssi

import (
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/analysis"
	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/channel"
	"github.com/roman-kulish/fpv-interceptor/internal/tuner"
)

// Sample is the outcome of one acquisition
type Sample struct {
	Frequency uint16
	Raw       uint8
	Smoothed  uint8
	Corrected uint8
	Trend     int
	Timestamp time.Time

	// History of the channel right after the reading was pushed
	History channel.History
}

// Acquirer reads strength from a tuned receiver into the channel store
type Acquirer struct {
	port  tuner.Port
	store *channel.Store
	clock func() time.Time
}

// WithClock sets the time source used for last-update timestamps
func WithClock(clock func() time.Time) func(*Acquirer) {
	return func(a *Acquirer) {
		a.clock = clock
	}
}

// NewAcquirer creates an acquirer
func NewAcquirer(port tuner.Port, store *channel.Store, options ...func(*Acquirer)) *Acquirer {
	a := &Acquirer{
		port:  port,
		store: store,
		clock: time.Now,
	}

	for _, option := range options {
		option(a)
	}

	return a
}

// Acquire reads the receiver, which must already be tuned to mhz, and returns
// the trend corrected reading.
func (a *Acquirer) Acquire(mhz uint16) (uint8, error) {
	s, err := a.Sample(mhz)
	if err != nil {
		return 0, err
	}
	return s.Corrected, nil
}

// Sample is Acquire returning every intermediate value. An out-of-band
// frequency is rejected before the receiver is read.
func (a *Acquirer) Sample(mhz uint16) (Sample, error) {
	if err := band.Validate(mhz); err != nil {
		return Sample{}, err
	}

	raw := a.port.ReadStrength()
	ts := a.clock()

	if _, err := a.store.Push(mhz, raw, ts); err != nil {
		return Sample{}, err
	}

	snap, err := a.store.Snapshot(mhz)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{
		Frequency: mhz,
		Raw:       raw,
		Smoothed:  snap.Smoothed,
		Corrected: raw,
		Trend:     analysis.Trend(&snap.History),
		Timestamp: ts,
		History:   snap.History,
	}

	if s.Trend > analysis.NeutralTrend {
		s.Corrected = uint8((int(raw) + int(snap.Smoothed)) / 2)
	}

	return s, nil
}
