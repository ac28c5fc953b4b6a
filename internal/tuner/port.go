// Package tuner provides the Tuner Port used by the scanner to drive a 5.8 GHz
// receiver module: set a frequency, read the raw signal strength. Implementations
// are selected at construction (stub, simulated, serial bridge), never by build.
package tuner

import (
	"errors"
)

var (
	// ErrTuneFailed is returned when the bus transaction setting a frequency fails
	ErrTuneFailed = errors.New("tune failed")

	// ErrNotReady is returned when the receiver is not initialised or not connected
	ErrNotReady = errors.New("receiver not ready")

	// ErrTimeout is returned when a bounded call did not complete in time
	ErrTimeout = errors.New("receiver call timed out")
)

// Port is the narrow tuning/read contract the scan engine consumes.
//
// SetFrequency fails with band.ErrOutOfRange for frequencies outside the band,
// or with ErrTuneFailed when the bus transaction fails. ReadStrength never fails:
// hardware absence is hidden behind a reading of 0. Both calls block for a
// bounded time.
type Port interface {
	SetFrequency(mhz uint16) error
	ReadStrength() uint8
	IsReady() bool
}
