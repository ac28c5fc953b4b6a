// Package analysis scores a channel's RSSI history and decides whether it
// carries an analog FPV video transmission. Every function is pure and ignores
// empty (0) slots.
package analysis

import (
	"github.com/roman-kulish/fpv-interceptor/internal/channel"
)

const (
	// RSSIThreshold is the hard floor a reading must reach before the
	// composite score is considered.
	RSSIThreshold = 50

	// VideoScoreThreshold is the composite score a signal must exceed
	VideoScoreThreshold = 60

	// MinSamples is the populated-slot count below which scores are neutral
	MinSamples = 5

	// NeutralTrend is the trend score of a flat or unknown channel
	NeutralTrend = 50

	// trend windows in physical slots
	recentStart = channel.HistorySize * 8 / 10
	oldEnd      = channel.HistorySize / 2

	transitionStep = 5
)

// Report is the full characterization of a history
type Report struct {
	Trend               int `json:"trend"`
	Stability           int `json:"stability"`
	Periodicity         int `json:"periodicity"`
	AmplitudeModulation int `json:"amplitudeModulation"`
	TransitionRate      int `json:"transitionRate"`
	FPV                 int `json:"fpv"`
}

// Characterize computes every score of the history
func Characterize(h *channel.History) Report {
	r := Report{
		Trend:               Trend(h),
		Stability:           Stability(h),
		Periodicity:         Periodicity(h),
		AmplitudeModulation: AmplitudeModulation(h),
		TransitionRate:      TransitionRate(h),
	}
	r.FPV = (r.Periodicity + r.AmplitudeModulation + r.TransitionRate) / 3
	return r
}

// Trend compares the mean of slots [80, 100) with the mean of slots [0, 50)
// and maps the difference onto 25..75, 50 being flat. Windows are physical
// buffer slots, not a time order.
func Trend(h *channel.History) int {
	if h.Populated() < MinSamples {
		return NeutralTrend
	}

	recent, ok := windowMean(h[recentStart:])
	if !ok {
		return NeutralTrend
	}
	old, ok := windowMean(h[:oldEnd])
	if !ok {
		return NeutralTrend
	}

	if recent > old {
		return NeutralTrend + (recent-old)*25/100
	}
	return NeutralTrend - (old-recent)*25/100
}

func windowMean(slots []uint8) (int, bool) {
	sum, n := 0, 0
	for _, v := range slots {
		if v > 0 {
			sum += int(v)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}

// Stability buckets the max-min range of the history
func Stability(h *channel.History) int {
	if h.Populated() < MinSamples {
		return 0
	}

	lo, hi := h.Bounds()
	switch spread := int(hi) - int(lo); {
	case spread < 20:
		return 100
	case spread < 40:
		return 80
	case spread < 60:
		return 60
	default:
		return 40
	}
}

// Periodicity counts 3-slot local maxima and minima centred on non-empty
// slots, 10 points each, capped at 100.
func Periodicity(h *channel.History) int {
	if h.Populated() < MinSamples {
		return 0
	}

	extrema := 0
	for i := 1; i < len(h)-1; i++ {
		curr := h[i]
		if curr == 0 {
			continue
		}

		prev, next := h[i-1], h[i+1]
		if (curr > prev && curr > next) || (curr < prev && curr < next) {
			extrema++
		}
	}

	return min(extrema*10, 100)
}

// AmplitudeModulation buckets the modulation depth (max-min) of the history
func AmplitudeModulation(h *channel.History) int {
	if h.Populated() < MinSamples {
		return 0
	}

	lo, hi := h.Bounds()
	return bucket(int(hi) - int(lo))
}

// TransitionRate buckets the percentage of adjacent non-empty pairs which
// differ by more than 5.
func TransitionRate(h *channel.History) int {
	changes, pairs := 0, 0
	for i := 1; i < len(h); i++ {
		if h[i] == 0 || h[i-1] == 0 {
			continue
		}

		pairs++
		if diff := int(h[i]) - int(h[i-1]); diff > transitionStep || diff < -transitionStep {
			changes++
		}
	}

	if pairs < MinSamples {
		return 0
	}

	return bucket(changes * 100 / pairs)
}

// FPVCharacteristics is the unweighted mean of periodicity, amplitude
// modulation and transition rate.
func FPVCharacteristics(h *channel.History) int {
	return (Periodicity(h) + AmplitudeModulation(h) + TransitionRate(h)) / 3
}

// bucket scores a value: (20, 60) -> 80, (10, 80) -> 60, otherwise 40
func bucket(v int) int {
	switch {
	case v > 20 && v < 60:
		return 80
	case v > 10 && v < 80:
		return 60
	default:
		return 40
	}
}

// VideoScore is the weighted composite used by the detection decision
func VideoScore(rssi, stability, fpv int) int {
	return (rssi*40 + stability*30 + fpv*30) / 100
}

// DetectVideo reports whether a reading on a channel with the given history
// is an FPV video transmission.
func DetectVideo(rssi uint8, h *channel.History) bool {
	if rssi < RSSIThreshold {
		return false
	}

	return VideoScore(int(rssi), Stability(h), FPVCharacteristics(h)) > VideoScoreThreshold
}
