package rssi

import (
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/channel"
)

// scriptedPort replays readings in order
type scriptedPort struct {
	readings []uint8
	reads    int
}

func (p *scriptedPort) SetFrequency(uint16) error { return nil }
func (p *scriptedPort) IsReady() bool             { return true }

func (p *scriptedPort) ReadStrength() uint8 {
	v := p.readings[p.reads%len(p.readings)]
	p.reads++
	return v
}

func TestAcquireRaw(t *testing.T) {
	store := channel.NewStore()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAcquirer(&scriptedPort{readings: []uint8{70}}, store, WithClock(func() time.Time { return at }))

	v, err := a.Acquire(5800)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v != 70 {
		t.Errorf("Expected 70, got %d", v)
	}

	snap, _ := store.Snapshot(5800)
	if snap.Smoothed != 70 || !snap.LastUpdate.Equal(at) {
		t.Errorf("Expected smoothed 70 updated at %v, got %+v", at, snap)
	}
}

func TestAcquireRisingTrendCorrection(t *testing.T) {
	store := channel.NewStore()

	// slots [0, 80) at 20 then a rising tail
	readings := make([]uint8, channel.HistorySize)
	for i := range readings {
		readings[i] = 20
		if i >= 80 {
			readings[i] = 90
		}
	}

	a := NewAcquirer(&scriptedPort{readings: readings}, store)

	var s Sample
	for i := range channel.HistorySize {
		var err error
		if s, err = a.Sample(5800); err != nil {
			t.Fatalf("Expected no error at %d, got %v", i, err)
		}
	}

	// smoothed = (80*20 + 20*90) / 100 = 34, trend = 50 + 70*25/100 = 67
	if s.Trend != 67 {
		t.Errorf("Expected trend 67, got %d", s.Trend)
	}
	if s.Smoothed != 34 {
		t.Errorf("Expected smoothed 34, got %d", s.Smoothed)
	}
	if want := uint8((90 + 34) / 2); s.Corrected != want {
		t.Errorf("Expected corrected %d, got %d", want, s.Corrected)
	}
}

func TestAcquireFlatTrendUncorrected(t *testing.T) {
	a := NewAcquirer(&scriptedPort{readings: []uint8{40, 60}}, channel.NewStore())

	for range channel.HistorySize {
		_, _ = a.Sample(5900)
	}

	s, _ := a.Sample(5900)
	if s.Trend > 50 {
		t.Fatalf("Expected non-rising trend, got %d", s.Trend)
	}
	if s.Corrected != s.Raw {
		t.Errorf("Expected raw reading %d, got %d", s.Raw, s.Corrected)
	}
}

func TestAcquireOutOfRange(t *testing.T) {
	port := &scriptedPort{readings: []uint8{70}}
	store := channel.NewStore()
	a := NewAcquirer(port, store)

	if _, err := a.Acquire(5724); !errors.Is(err, band.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if port.reads != 0 {
		t.Errorf("Expected receiver not to be read, got %d reads", port.reads)
	}
}
