package tuner

import (
	"fmt"
	"sync"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

// Profile returns the strength read on a frequency for the n-th read (0-based)
// since that frequency was last tuned.
type Profile func(mhz uint16, n int) uint8

// Carrier describes a simulated transmitter. Strength oscillates between
// Level-Depth/2 and Level+Depth/2 with the given period (in reads), which is the
// frame-synced pattern an analog video carrier leaves on the RSSI line.
type Carrier struct {
	Frequency uint16 `yaml:"frequency"`
	Level     uint8  `yaml:"level"`
	Depth     uint8  `yaml:"depth"`
	Period    int    `yaml:"period"`
}

// CarrierProfile builds a Profile with the given carriers over a constant noise floor
func CarrierProfile(noise uint8, carriers ...Carrier) Profile {
	byFreq := make(map[uint16]Carrier, len(carriers))
	for _, c := range carriers {
		byFreq[c.Frequency] = c
	}

	return func(mhz uint16, n int) uint8 {
		c, ok := byFreq[mhz]
		if !ok {
			return noise
		}
		if c.Depth == 0 || c.Period < 2 {
			return c.Level
		}

		// triangle wave around the carrier level
		half := c.Period / 2
		phase := n % c.Period
		if phase > half {
			phase = c.Period - phase
		}
		low := int(c.Level) - int(c.Depth)/2
		v := low + phase*int(c.Depth)/half
		return uint8(min(max(v, 1), 100))
	}
}

// Simulated is a deterministic receiver driven by a Profile. It records every
// tuned frequency and can be told to fail tuning on selected frequencies.
type Simulated struct {
	mu       sync.Mutex
	profile  Profile
	current  uint16
	reads    int
	failures map[uint16]error
	notReady bool
	tuned    []uint16
}

// NewSimulated creates a simulated receiver
func NewSimulated(profile Profile) *Simulated {
	return &Simulated{
		profile:  profile,
		failures: make(map[uint16]error),
	}
}

// FailOn makes SetFrequency fail on the given frequency
func (s *Simulated) FailOn(mhz uint16, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[mhz] = err
}

// SetReady toggles readiness; a receiver that is not ready reads 0 and cannot tune
func (s *Simulated) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notReady = !ready
}

func (s *Simulated) SetFrequency(mhz uint16) error {
	if err := band.Validate(mhz); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notReady {
		return fmt.Errorf("%w: %w", ErrTuneFailed, ErrNotReady)
	}
	if err, ok := s.failures[mhz]; ok {
		return fmt.Errorf("%w: %d MHz: %w", ErrTuneFailed, mhz, err)
	}

	s.current = mhz
	s.reads = 0
	s.tuned = append(s.tuned, mhz)
	return nil
}

func (s *Simulated) ReadStrength() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notReady || s.current == 0 {
		return 0
	}

	v := s.profile(s.current, s.reads)
	s.reads++
	return min(v, 100)
}

func (s *Simulated) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.notReady
}

// Tuned returns a copy of every frequency successfully tuned so far
func (s *Simulated) Tuned() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.tuned...)
}
