package tuner

import (
	"math/rand/v2"
	"sync"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

const (
	stubNoiseFloor = 30
	stubNoiseSpan  = 40
)

// Stub is a receiver without hardware. It accepts every in-band frequency and
// reads uniformly distributed noise in [30, 70).
type Stub struct {
	mu        sync.Mutex
	frequency uint16
	rnd       *rand.Rand
}

// NewStub creates a stub receiver using the given seed for its noise source
func NewStub(seed uint64) *Stub {
	return &Stub{
		frequency: band.MinFrequency,
		rnd:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Stub) SetFrequency(mhz uint16) error {
	if err := band.Validate(mhz); err != nil {
		return err
	}

	s.mu.Lock()
	s.frequency = mhz
	s.mu.Unlock()
	return nil
}

func (s *Stub) ReadStrength() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint8(stubNoiseFloor + s.rnd.IntN(stubNoiseSpan))
}

func (s *Stub) IsReady() bool {
	return true
}

// Frequency returns the last frequency set
func (s *Stub) Frequency() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}
