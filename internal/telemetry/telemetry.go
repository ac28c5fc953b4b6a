// Package telemetry provides the receiver position used to tag captures.
package telemetry

import (
	"time"
)

// Provider returns the latest known position, or nil when there is no fix
type Provider interface {
	Get() *Telemetry
}

// Telemetry is the position of the receiver at a point in time
type Telemetry struct {
	Timestamp  time.Time `json:"timestamp"`            // Timestamp of the fix
	Latitude   *float64  `json:"latitude,omitempty"`   // GPS latitude in degrees
	Longitude  *float64  `json:"longitude,omitempty"`  // GPS longitude in degrees
	Altitude   *float64  `json:"altitude,omitempty"`   // Altitude above mean sea level in meters
	Satellites *int      `json:"satellites,omitempty"` // Satellites in use
}

// HasPosition reports whether t carries both coordinates
func (t *Telemetry) HasPosition() bool {
	return t != nil && t.Latitude != nil && t.Longitude != nil
}

func (t *Telemetry) clone() *Telemetry {
	if t == nil {
		return nil
	}

	c := &Telemetry{Timestamp: t.Timestamp}
	c.Latitude = clonePtr(t.Latitude)
	c.Longitude = clonePtr(t.Longitude)
	c.Altitude = clonePtr(t.Altitude)
	c.Satellites = clonePtr(t.Satellites)
	return c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// None never has a fix
type None struct{}

func (None) Get() *Telemetry { return nil }

// Static is a manually entered, fixed position
type Static struct {
	position Telemetry
	clock    func() time.Time
}

// NewStatic creates a provider always returning the given coordinates
func NewStatic(latitude, longitude, altitude float64) *Static {
	return &Static{
		position: Telemetry{
			Latitude:  &latitude,
			Longitude: &longitude,
			Altitude:  &altitude,
		},
		clock: time.Now,
	}
}

func (s *Static) Get() *Telemetry {
	t := s.position.clone()
	t.Timestamp = s.clock()
	return t
}
