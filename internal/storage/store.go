// Package storage persists scan sessions, RSSI readings, detections and captures.
package storage

import (
	"context"
	"errors"

	"github.com/roman-kulish/fpv-interceptor/internal/spectrum"
)

// ErrNoData indicates that no data exists for the given parameters
var ErrNoData = errors.New("no data available")

// Store manages persisted scan data. Writes of a batch are atomic.
type Store interface {
	// CreateSession records the start of a run and returns its identifier.
	// config can be a string, []byte or a JSON-serializable value.
	CreateSession(ctx context.Context, session *spectrum.ScanSession, config any) (sessionID int64, err error)

	// Session retrieves a session by its ID
	Session(ctx context.Context, id int64) (*spectrum.ScanSession, error)

	// Sessions returns every session ordered by start time
	Sessions(ctx context.Context) ([]*spectrum.ScanSession, error)

	// StoreSamples saves readings of a session in a single transaction
	StoreSamples(ctx context.Context, sessionID int64, points []spectrum.RSSIPoint) error

	// StoreDetections saves the detected signals of a session; an existing
	// frequency is updated in place
	StoreDetections(ctx context.Context, sessionID int64, detections []spectrum.Detection) error

	// Detections returns the detected signals of a session
	Detections(ctx context.Context, sessionID int64) ([]spectrum.Detection, error)

	// StoreCapture saves a capture and returns its identifier
	StoreCapture(ctx context.Context, sessionID int64, c *spectrum.Capture) (captureID int64, err error)

	// Captures returns the captures of a session
	Captures(ctx context.Context, sessionID int64) ([]*spectrum.Capture, error)

	// ReadPasses returns a reader over the sweep passes of a session
	ReadPasses(ctx context.Context, sessionID int64, opts ...ReaderOption) (PassReader, error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
