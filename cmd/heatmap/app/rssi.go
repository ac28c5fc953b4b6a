package app

import (
	"github.com/roman-kulish/fpv-interceptor/internal/analysis"
)

const (
	defaultMinRSSI = 0
	defaultMaxRSSI = 100

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	// narrower windows exaggerate the noise floor
	minimumRange = 20
)

// RSSIBounds is the strength window mapped onto the colour theme
type RSSIBounds struct {
	Min  float64 // 5th percentile
	Max  float64 // 95th percentile
	Mean float64
}

func defaultRSSIBounds() RSSIBounds {
	return RSSIBounds{
		Min:  defaultMinRSSI,
		Max:  defaultMaxRSSI,
		Mean: analysis.RSSIThreshold,
	}
}

// RSSIHistogram counts readings per strength unit. Zero readings are gaps and
// are not counted.
type RSSIHistogram struct {
	bins  [defaultMaxRSSI + 1]uint64
	total uint64
}

// Update adds a reading to the histogram
func (h *RSSIHistogram) Update(rssi uint8) {
	if rssi == 0 {
		return
	}
	h.bins[min(rssi, defaultMaxRSSI)]++
	h.total++
}

// Count returns the number of counted readings
func (h *RSSIHistogram) Count() uint64 {
	return h.total
}

// Bounds returns the 5th..95th percentile window with a 10% margin, at least
// minimumRange wide
func (h *RSSIHistogram) Bounds() RSSIBounds {
	if h.total < minimumSampleCount {
		return defaultRSSIBounds()
	}

	target := h.total * 5 / 100

	var count uint64
	lo, hi := defaultMinRSSI, defaultMaxRSSI
	for bin := range h.bins {
		count += h.bins[bin]
		if count > target {
			lo = bin
			break
		}
	}

	count = 0
	for bin := len(h.bins) - 1; bin >= 0; bin-- {
		count += h.bins[bin]
		if count > target {
			hi = bin
			break
		}
	}

	var sum float64
	for bin, n := range h.bins {
		sum += float64(bin) * float64(n)
	}

	if hi-lo < minimumRange {
		center := (hi + lo) / 2
		lo = center - minimumRange/2
		hi = center + minimumRange/2
	}

	margin := (hi - lo) / 10
	lo = max(lo-margin, defaultMinRSSI)
	hi = min(hi+margin, defaultMaxRSSI)

	return RSSIBounds{
		Min:  float64(lo),
		Max:  float64(hi),
		Mean: sum / float64(h.total),
	}
}
