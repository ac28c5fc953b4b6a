package scanner

import (
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/analysis"
	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/channel"
)

// ChannelStats is the derived view of one channel. A channel without samples
// reports zeros.
type ChannelStats struct {
	Frequency  uint16    `json:"frequency"`
	Current    uint8     `json:"current"` // smoothed value
	Min        uint8     `json:"min"`
	Max        uint8     `json:"max"`
	Avg        uint8     `json:"avg"`
	Samples    int       `json:"samples"`
	Stability  int       `json:"stability"`
	Trend      int       `json:"trend"`
	FPV        int       `json:"fpv"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// Stats computes the stats of a channel from a store snapshot
func Stats(store *channel.Store, mhz uint16) (ChannelStats, error) {
	snap, err := store.Snapshot(mhz)
	if err != nil {
		return ChannelStats{}, err
	}

	stats := ChannelStats{
		Frequency:  mhz,
		Current:    snap.Smoothed,
		Samples:    snap.History.Populated(),
		LastUpdate: snap.LastUpdate,
	}

	if stats.Samples == 0 {
		return stats, nil
	}

	stats.Min, stats.Max = snap.History.Bounds()
	stats.Avg, _ = snap.History.Mean()

	report := analysis.Characterize(&snap.History)
	stats.Stability = report.Stability
	stats.Trend = report.Trend
	stats.FPV = report.FPV

	return stats, nil
}

// ChannelStats returns the stats of a channel; safe while a scan is running
func (c *Controller) ChannelStats(mhz uint16) (ChannelStats, error) {
	return Stats(c.store, mhz)
}

// BandStats returns the stats of every channel of the range holding samples
func (c *Controller) BandStats(r band.Range) ([]ChannelStats, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var out []ChannelStats
	for mhz := range r.Frequencies() {
		stats, err := Stats(c.store, mhz)
		if err != nil {
			return nil, err
		}
		if stats.Samples > 0 {
			out = append(out, stats)
		}
	}

	return out, nil
}
