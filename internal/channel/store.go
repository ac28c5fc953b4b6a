// Package channel holds the per-channel RSSI history of the scan band.
package channel

import (
	"sync"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

// HistorySize is the capacity of a channel's circular sample buffer
const HistorySize = 100

// History is a copy of a channel's circular buffer in physical slot order.
// A slot holding 0 is empty: a genuine reading of 0 cannot be told apart from
// an unwritten slot and is ignored by every consumer.
type History [HistorySize]uint8

// Populated returns the number of non-empty slots
func (h *History) Populated() int {
	n := 0
	for _, v := range h {
		if v > 0 {
			n++
		}
	}
	return n
}

// Mean returns the integer mean of non-empty slots and whether any exist
func (h *History) Mean() (uint8, bool) {
	sum, n := 0, 0
	for _, v := range h {
		if v > 0 {
			sum += int(v)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return uint8(sum / n), true
}

// Bounds returns min and max over non-empty slots; both are 0 if none exist
func (h *History) Bounds() (lo, hi uint8) {
	lo = 255
	for _, v := range h {
		if v == 0 {
			continue
		}
		lo, hi = min(lo, v), max(hi, v)
	}
	if hi == 0 {
		return 0, 0
	}
	return lo, hi
}

// State is one channel. Only the active scan step writes to it; readers take
// a snapshot under the read lock.
type State struct {
	mu         sync.RWMutex
	history    History
	writeIndex int
	smoothed   uint8
	lastUpdate time.Time
}

// Snapshot is a tear-free copy of a channel
type Snapshot struct {
	Frequency  uint16
	History    History
	WriteIndex int
	Smoothed   uint8
	LastUpdate time.Time
}

// Store is the fixed set of channels covering the band, indexed by
// frequency - band.MinFrequency.
type Store struct {
	channels [band.ChannelCount]State
}

// NewStore creates an empty channel store
func NewStore() *Store {
	return &Store{}
}

// Push records a reading and returns the recomputed smoothed value. When the
// buffer holds no non-empty slot the previous smoothed value is kept.
func (s *Store) Push(mhz uint16, v uint8, ts time.Time) (uint8, error) {
	if err := band.Validate(mhz); err != nil {
		return 0, err
	}

	c := &s.channels[band.Index(mhz)]

	c.mu.Lock()
	defer c.mu.Unlock()

	c.history[c.writeIndex] = v
	c.writeIndex = (c.writeIndex + 1) % HistorySize

	if mean, ok := c.history.Mean(); ok {
		c.smoothed = mean
	}
	c.lastUpdate = ts

	return c.smoothed, nil
}

// Snapshot copies a channel's state
func (s *Store) Snapshot(mhz uint16) (Snapshot, error) {
	if err := band.Validate(mhz); err != nil {
		return Snapshot{}, err
	}

	c := &s.channels[band.Index(mhz)]

	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Frequency:  mhz,
		History:    c.history,
		WriteIndex: c.writeIndex,
		Smoothed:   c.smoothed,
		LastUpdate: c.lastUpdate,
	}, nil
}

// Smoothed returns the current smoothed value of a channel
func (s *Store) Smoothed(mhz uint16) (uint8, error) {
	if err := band.Validate(mhz); err != nil {
		return 0, err
	}

	c := &s.channels[band.Index(mhz)]

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.smoothed, nil
}

// Reset empties every channel
func (s *Store) Reset() {
	for i := range s.channels {
		c := &s.channels[i]
		c.mu.Lock()
		c.history = History{}
		c.writeIndex = 0
		c.smoothed = 0
		c.lastUpdate = time.Time{}
		c.mu.Unlock()
	}
}
