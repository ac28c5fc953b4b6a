package tuner

import (
	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

// RX5808 synthesizer registers
const (
	RegisterAddressA uint8 = 0x0
	RegisterAddressB uint8 = 0x1

	registerWriteBit = 1 << 4
	registerDataMask = 0xfffff // 20 data bits
	intermediateFreq = 479     // MHz
	FrameBits        = 25
)

// RegisterB returns the synthesizer B register value for an in-band frequency:
// N = ((f - IF) / 2) / 32 in bits 7 and up, A = ((f - IF) / 2) % 32 in bits 0..6.
func RegisterB(mhz uint16) uint32 {
	if err := band.Validate(mhz); err != nil {
		return 0
	}

	half := uint32(mhz-intermediateFreq) / 2
	return (half/32)<<7 | half%32
}

// EncodeFrame packs a register write into the 25-bit frame clocked out LSB first:
// 4 address bits, the write flag, then 20 data bits.
func EncodeFrame(address uint8, data uint32) uint32 {
	return uint32(address&0x0f) | registerWriteBit | (data&registerDataMask)<<5
}

// FrequencyFrame returns the frame that tunes the module to the given frequency
func FrequencyFrame(mhz uint16) uint32 {
	return EncodeFrame(RegisterAddressB, RegisterB(mhz))
}
