// Package band describes the 5.8 GHz scan band the receiver is tuned across.
// Channels are integer-MHz slots indexed by frequency - MinFrequency.
package band

import (
	"errors"
	"fmt"
	"iter"
)

const (
	MinFrequency  uint16 = 5725 // MHz
	MaxFrequency  uint16 = 6000 // MHz
	FrequencyStep uint16 = 1    // MHz

	// ChannelCount is the number of channels in [MinFrequency, MaxFrequency]
	ChannelCount = int(MaxFrequency-MinFrequency) + 1
)

// ErrOutOfRange is returned for frequencies outside [MinFrequency, MaxFrequency]
var ErrOutOfRange = errors.New("frequency out of range")

// Contains reports whether the frequency is inside the band
func Contains(mhz uint16) bool {
	return mhz >= MinFrequency && mhz <= MaxFrequency
}

// Validate returns ErrOutOfRange for a frequency outside the band
func Validate(mhz uint16) error {
	if !Contains(mhz) {
		return fmt.Errorf("%w: %d MHz (band is %d-%d MHz)", ErrOutOfRange, mhz, MinFrequency, MaxFrequency)
	}
	return nil
}

// Index returns the channel index of an in-band frequency
func Index(mhz uint16) int {
	return int(mhz - MinFrequency)
}

// Frequency returns the frequency of a channel index
func Frequency(index int) uint16 {
	return MinFrequency + uint16(index)
}

// Range is an inclusive frequency range in MHz
type Range struct {
	Start uint16 `yaml:"start" json:"start"`
	End   uint16 `yaml:"end" json:"end"`
}

// Full returns the whole band
func Full() Range {
	return Range{Start: MinFrequency, End: MaxFrequency}
}

// Validate checks that both ends are in-band and Start <= End
func (r Range) Validate() error {
	if err := Validate(r.Start); err != nil {
		return err
	}
	if err := Validate(r.End); err != nil {
		return err
	}
	if r.Start > r.End {
		return fmt.Errorf("%w: start %d MHz is above end %d MHz", ErrOutOfRange, r.Start, r.End)
	}
	return nil
}

// Len returns the number of channels covered by the range
func (r Range) Len() int {
	if r.Start > r.End {
		return 0
	}
	return int((r.End-r.Start)/FrequencyStep) + 1
}

// Frequencies yields every channel frequency of the range in ascending order
func (r Range) Frequencies() iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		if r.Start > r.End {
			return
		}
		for f := uint32(r.Start); f <= uint32(r.End); f += uint32(FrequencyStep) {
			if !yield(uint16(f)) {
				return
			}
		}
	}
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d MHz", r.Start, r.End)
}
