package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"
)

// GPSD follows TPV and SKY reports of a gpsd daemon
type GPSD struct {
	session *gpsd.Session
	mu      sync.RWMutex
	last    *Telemetry
	sats    *int
}

// DialGPSD connects to gpsd (gpsd.DefaultAddress when addr is empty) and starts watching
func DialGPSD(addr string) (*GPSD, error) {
	if addr == "" {
		addr = gpsd.DefaultAddress
	}

	session, err := gpsd.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gpsd at %s: %w", addr, err)
	}

	g := &GPSD{session: session}

	session.AddFilter("TPV", func(r interface{}) {
		if tpv, ok := r.(*gpsd.TPVReport); ok {
			g.onTPV(tpv)
		}
	})
	session.AddFilter("SKY", func(r interface{}) {
		if sky, ok := r.(*gpsd.SKYReport); ok {
			g.onSKY(sky)
		}
	})

	session.Watch()

	return g, nil
}

func (g *GPSD) onTPV(tpv *gpsd.TPVReport) {
	// 2D or 3D fix only
	if tpv.Mode != 2 && tpv.Mode != 3 {
		return
	}

	ts := tpv.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	lat, lon := tpv.Lat, tpv.Lon
	t := &Telemetry{
		Timestamp: ts,
		Latitude:  &lat,
		Longitude: &lon,
	}
	if tpv.Mode == 3 {
		alt := tpv.Alt
		t.Altitude = &alt
	}

	g.mu.Lock()
	t.Satellites = clonePtr(g.sats)
	g.last = t
	g.mu.Unlock()
}

func (g *GPSD) onSKY(sky *gpsd.SKYReport) {
	used := 0
	for _, s := range sky.Satellites {
		if s.Used {
			used++
		}
	}

	g.mu.Lock()
	g.sats = &used
	if g.last != nil {
		g.last.Satellites = clonePtr(g.sats)
	}
	g.mu.Unlock()
}

func (g *GPSD) Get() *Telemetry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last.clone()
}

// Close disconnects from gpsd
func (g *GPSD) Close() {
	g.session.Close()
}
