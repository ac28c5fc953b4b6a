package app

import (
	"math"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/spectrum"
)

// Waterfall accumulates sweep passes: one row per pass, one column per channel
type Waterfall struct {
	FrequencyMin, FrequencyMax   uint16
	TimestampStart, TimestampEnd time.Time
	Histogram                    *RSSIHistogram
	Rows                         [][]uint8
	Timestamps                   []time.Time // per row

	// Detections maps a detected frequency onto whether video was seen on it
	Detections map[uint16]bool
}

func NewWaterfall() *Waterfall {
	return &Waterfall{
		FrequencyMin: math.MaxUint16,
		Histogram:    &RSSIHistogram{},
		Detections:   make(map[uint16]bool),
	}
}

// Width returns the number of channels
func (w *Waterfall) Width() int {
	if len(w.Rows) == 0 {
		return 0
	}
	return int(w.FrequencyMax-w.FrequencyMin) + 1
}

// Height returns the number of passes
func (w *Waterfall) Height() int {
	return len(w.Rows)
}

// Update appends a pass as the next row
func (w *Waterfall) Update(pass *spectrum.Pass) {
	if len(pass.Points) == 0 {
		return
	}

	w.FrequencyMin = min(w.FrequencyMin, pass.FrequencyStart)
	w.FrequencyMax = max(w.FrequencyMax, pass.FrequencyEnd)

	if w.TimestampStart.IsZero() || w.TimestampStart.After(pass.Timestamp) {
		w.TimestampStart = pass.Timestamp
	}
	if w.TimestampEnd.IsZero() || w.TimestampEnd.Before(pass.Timestamp) {
		w.TimestampEnd = pass.Timestamp
	}

	row := make([]uint8, 0, len(pass.Points))
	for _, p := range pass.Points {
		row = append(row, p.RSSI)
		w.Histogram.Update(p.RSSI)
	}
	w.Rows = append(w.Rows, row)
	w.Timestamps = append(w.Timestamps, pass.Timestamp)
}

// passTime returns the timestamp of a row
func (w *Waterfall) passTime(row int) time.Time {
	if row < 0 || row >= len(w.Timestamps) {
		return w.TimestampStart
	}
	return w.Timestamps[row]
}

// Value returns the reading on the given row and frequency, or 0. Passes of
// one reader share the frequency range.
func (w *Waterfall) Value(row int, mhz uint16) uint8 {
	if row < 0 || row >= len(w.Rows) || mhz < w.FrequencyMin {
		return 0
	}
	r := w.Rows[row]
	if i := int(mhz - w.FrequencyMin); i < len(r) {
		return r[i]
	}
	return 0
}

// MarkDetections records the detected frequencies of the session
func (w *Waterfall) MarkDetections(detections []spectrum.Detection) {
	for _, d := range detections {
		w.Detections[d.Frequency] = w.Detections[d.Frequency] || d.VideoDetected
	}
}
