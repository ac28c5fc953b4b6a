package analysis

import (
	"testing"

	"github.com/roman-kulish/fpv-interceptor/internal/channel"
)

func history(values ...uint8) *channel.History {
	var h channel.History
	copy(h[:], values)
	return &h
}

func repeat(v uint8, n int) []uint8 {
	s := make([]uint8, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestStability(t *testing.T) {
	tests := []struct {
		name   string
		values []uint8
		want   int
	}{
		{"too few samples", []uint8{10, 90, 10, 90}, 0},
		{"range 19", []uint8{50, 60, 69, 55, 50}, 100},
		{"range 20", []uint8{50, 60, 70, 55, 50}, 80},
		{"range 39", []uint8{30, 40, 69, 55, 30}, 80},
		{"range 59", []uint8{10, 40, 69, 55, 10}, 60},
		{"range 60", []uint8{10, 40, 70, 55, 10}, 40},
		{"range 61", []uint8{10, 40, 71, 55, 10}, 40},
		{"zeros ignored", []uint8{50, 0, 60, 0, 69, 0, 55, 0, 50}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stability(history(tt.values...)); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestTrend(t *testing.T) {
	rising := history(append(append(repeat(40, 50), repeat(60, 30)...), repeat(80, 20)...)...)
	falling := history(append(append(repeat(80, 50), repeat(60, 30)...), repeat(40, 20)...)...)

	tests := []struct {
		name string
		h    *channel.History
		want int
	}{
		{"empty", history(), NeutralTrend},
		{"recent window empty", history(repeat(70, 10)...), NeutralTrend},
		{"flat", history(repeat(70, channel.HistorySize)...), 50},
		{"rising", rising, 60},
		{"falling", falling, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Trend(tt.h); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestPeriodicity(t *testing.T) {
	tests := []struct {
		name   string
		values []uint8
		want   int
	}{
		{"too few samples", []uint8{30, 50, 30, 50}, 0},
		{"flat", repeat(50, 20), 0},
		{"three extrema", []uint8{30, 50, 30, 50, 30}, 30},
		{"capped", []uint8{30, 50, 30, 50, 30, 50, 30, 50, 30, 50, 30, 50, 30, 50}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Periodicity(history(tt.values...)); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAmplitudeModulation(t *testing.T) {
	tests := []struct {
		name   string
		values []uint8
		want   int
	}{
		{"too few samples", []uint8{30, 60}, 0},
		{"depth 30", []uint8{30, 60, 40, 50, 45}, 80},
		{"depth 15", []uint8{30, 45, 40, 35, 30}, 60},
		{"depth 70", []uint8{10, 80, 40, 35, 30}, 60},
		{"depth 5", []uint8{30, 35, 31, 32, 33}, 40},
		{"depth 80", []uint8{10, 90, 40, 35, 30}, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AmplitudeModulation(history(tt.values...)); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestTransitionRate(t *testing.T) {
	tests := []struct {
		name   string
		values []uint8
		want   int
	}{
		{"too few pairs", []uint8{30, 50, 30, 50, 30}, 0},
		{"pairs broken by gaps", []uint8{30, 0, 50, 0, 30, 0, 50, 0, 30, 0, 50}, 0},
		{"every pair changes", []uint8{30, 50, 30, 50, 30, 50, 30, 50, 30, 50}, 40},
		{"a third changes", []uint8{50, 50, 50, 60, 60, 60, 70, 70, 70, 80}, 80},
		{"no changes", repeat(50, 10), 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TransitionRate(history(tt.values...)); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestVideoScore(t *testing.T) {
	if got := VideoScore(51, 100, 100); got != 80 {
		t.Errorf("Expected 80, got %d", got)
	}
	if got := VideoScore(70, 0, 0); got != 28 {
		t.Errorf("Expected 28, got %d", got)
	}
}

func TestDetectVideo(t *testing.T) {
	// stability 100, fpv 60 (periodicity 100, modulation 40, transitions 40)
	oscillating := make([]uint8, 0, channel.HistorySize)
	for i := range channel.HistorySize {
		oscillating = append(oscillating, []uint8{95, 100, 95, 92, 95, 100}[i%6])
	}

	tests := []struct {
		name string
		rssi uint8
		h    *channel.History
		want bool
	}{
		{"below floor", 49, history(oscillating...), false},
		{"single sample", 70, history(70), false},
		{"constant carrier", 70, history(repeat(70, channel.HistorySize)...), true},
		{"weak constant carrier", 50, history(repeat(50, channel.HistorySize)...), false},
		{"oscillating carrier", 95, history(oscillating...), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectVideo(tt.rssi, tt.h); got != tt.want {
				r := Characterize(tt.h)
				t.Errorf("Expected %v, got %v (%+v)", tt.want, got, r)
			}
		})
	}
}

func TestCharacterize(t *testing.T) {
	r := Characterize(history(repeat(70, channel.HistorySize)...))

	want := Report{Trend: 50, Stability: 100, Periodicity: 0, AmplitudeModulation: 40, TransitionRate: 40, FPV: 26}
	if r != want {
		t.Errorf("Expected %+v, got %+v", want, r)
	}
	if r.FPV != FPVCharacteristics(history(repeat(70, channel.HistorySize)...)) {
		t.Error("Expected composite to match FPVCharacteristics")
	}
}
