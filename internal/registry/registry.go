// Package registry keeps the set of channels flagged during scanning, at most
// one entry per frequency.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

// DefaultCapacity is the maximum number of tracked signals
const DefaultCapacity = 100

// ErrCapacityExceeded is returned when inserting a new frequency into a full registry
var ErrCapacityExceeded = errors.New("registry capacity exceeded")

// DetectedSignal is one flagged channel
type DetectedSignal struct {
	Frequency     uint16    `json:"frequency"`
	RSSI          uint8     `json:"rssi"`
	VideoDetected bool      `json:"videoDetected"`
	Timestamp     time.Time `json:"timestamp"`  // last observation
	DetectedAt    time.Time `json:"detectedAt"` // first observation

	// Artifact is an opaque reference to captured video, empty when none
	Artifact string `json:"artifact,omitempty"`
}

// Registry is a bounded, insertion ordered set of detected signals
type Registry struct {
	mu       sync.Mutex
	signals  []DetectedSignal
	capacity int
	clock    func() time.Time
	artifact func(mhz uint16) string
}

// WithCapacity sets the maximum number of entries; non-positive values keep
// the default
func WithCapacity(capacity int) func(*Registry) {
	return func(r *Registry) {
		if capacity > 0 {
			r.capacity = capacity
		}
	}
}

// WithClock sets the time source of entry timestamps
func WithClock(clock func() time.Time) func(*Registry) {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithArtifactNamer sets the generator of artifact references, assigned the
// first time an entry is flagged with video. A namer returning "" leaves the
// entry without a reference.
func WithArtifactNamer(namer func(mhz uint16) string) func(*Registry) {
	return func(r *Registry) {
		r.artifact = namer
	}
}

// NewArtifactRef returns a random artifact reference
func NewArtifactRef(uint16) string {
	return uuid.NewString()
}

// New creates an empty registry
func New(options ...func(*Registry)) *Registry {
	r := &Registry{
		capacity: DefaultCapacity,
		clock:    time.Now,
		artifact: NewArtifactRef,
	}

	for _, option := range options {
		option(r)
	}

	r.signals = make([]DetectedSignal, 0, r.capacity)
	return r
}

// Upsert records an observation. An existing entry for the frequency is
// updated in place, keeping its position and first detection time.
func (r *Registry) Upsert(mhz uint16, rssi uint8, video bool) error {
	if err := band.Validate(mhz); err != nil {
		return err
	}

	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(mhz); i >= 0 {
		s := &r.signals[i]
		s.RSSI = rssi
		s.VideoDetected = video
		s.Timestamp = now
		r.assignArtifact(s)
		return nil
	}

	if len(r.signals) >= r.capacity {
		return fmt.Errorf("%w: %d signals tracked, %d MHz not recorded", ErrCapacityExceeded, len(r.signals), mhz)
	}

	s := DetectedSignal{
		Frequency:     mhz,
		RSSI:          rssi,
		VideoDetected: video,
		Timestamp:     now,
		DetectedAt:    now,
	}
	r.assignArtifact(&s)

	r.signals = append(r.signals, s)
	return nil
}

// AttachArtifact sets the artifact reference of an existing entry
func (r *Registry) AttachArtifact(mhz uint16, ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(mhz)
	if i < 0 {
		return false
	}

	r.signals[i].Artifact = ref
	return true
}

// Get returns the entry of a frequency
func (r *Registry) Get(mhz uint16) (DetectedSignal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(mhz); i >= 0 {
		return r.signals[i], true
	}
	return DetectedSignal{}, false
}

// Signals returns a copy of every entry in insertion order
func (r *Registry) Signals() []DetectedSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.signals)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

// Clear removes every entry
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = r.signals[:0]
}

func (r *Registry) assignArtifact(s *DetectedSignal) {
	if s.VideoDetected && s.Artifact == "" && r.artifact != nil {
		s.Artifact = r.artifact(s.Frequency)
	}
}

func (r *Registry) indexOf(mhz uint16) int {
	return slices.IndexFunc(r.signals, func(s DetectedSignal) bool {
		return s.Frequency == mhz
	})
}
