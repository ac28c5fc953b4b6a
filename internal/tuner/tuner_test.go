package tuner

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

func TestRegisterB(t *testing.T) {
	tests := []struct {
		freq uint16
		want uint32
	}{
		{5865, 0x2A05},
		{5725, (((5725 - 479) / 2) / 32 << 7) | ((5725-479)/2)%32},
		{6000, (((6000 - 479) / 2) / 32 << 7) | ((6000-479)/2)%32},
		{5000, 0}, // out of band
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.freq), func(t *testing.T) {
			if got := RegisterB(tt.freq); got != tt.want {
				t.Errorf("Expected %#x, got %#x", tt.want, got)
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	frame := EncodeFrame(RegisterAddressB, 0x2A05)

	if frame&0x0f != uint32(RegisterAddressB) {
		t.Errorf("Expected address %d, got %d", RegisterAddressB, frame&0x0f)
	}
	if frame&(1<<4) == 0 {
		t.Error("Expected write bit to be set")
	}
	if data := frame >> 5; data != 0x2A05 {
		t.Errorf("Expected data %#x, got %#x", 0x2A05, data)
	}
	if frame>>FrameBits != 0 {
		t.Errorf("Expected frame to fit in %d bits, got %#x", FrameBits, frame)
	}
}

func TestCalibrationScale(t *testing.T) {
	c := Calibration{Min: 100, Max: 199}

	tests := []struct {
		count int
		want  uint8
	}{
		{0, 0},
		{50, 1},
		{100, 1},
		{150, 51},
		{199, 100},
		{1023, 100},
	}

	for _, tt := range tests {
		if got := c.Scale(tt.count); got != tt.want {
			t.Errorf("Scale(%d): Expected %d, got %d", tt.count, tt.want, got)
		}
	}

	if err := (Calibration{Min: 500, Max: 400}).Validate(); err == nil {
		t.Error("Expected inverted calibration to be invalid")
	}
}

func TestStub(t *testing.T) {
	s := NewStub(1)

	if err := s.SetFrequency(5800); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.SetFrequency(6001); !errors.Is(err, band.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if s.Frequency() != 5800 {
		t.Errorf("Expected frequency to stay at 5800, got %d", s.Frequency())
	}

	for range 1000 {
		v := s.ReadStrength()
		if v < 30 || v >= 70 {
			t.Fatalf("Expected reading in [30, 70), got %d", v)
		}
	}
}

func TestSimulated(t *testing.T) {
	s := NewSimulated(CarrierProfile(15, Carrier{Frequency: 5800, Level: 70}))

	if v := s.ReadStrength(); v != 0 {
		t.Errorf("Expected 0 before tuning, got %d", v)
	}

	_ = s.SetFrequency(5800)
	if v := s.ReadStrength(); v != 70 {
		t.Errorf("Expected 70, got %d", v)
	}

	_ = s.SetFrequency(5801)
	if v := s.ReadStrength(); v != 15 {
		t.Errorf("Expected 15, got %d", v)
	}

	s.FailOn(5802, errors.New("bus error"))
	if err := s.SetFrequency(5802); !errors.Is(err, ErrTuneFailed) {
		t.Errorf("Expected ErrTuneFailed, got %v", err)
	}

	s.SetReady(false)
	if s.IsReady() {
		t.Error("Expected simulated receiver not to be ready")
	}
	if v := s.ReadStrength(); v != 0 {
		t.Errorf("Expected 0 when not ready, got %d", v)
	}

	want := []uint16{5800, 5801}
	if got := s.Tuned(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestCarrierProfileOscillates(t *testing.T) {
	p := CarrierProfile(10, Carrier{Frequency: 5800, Level: 60, Depth: 40, Period: 8})

	lo, hi := uint8(255), uint8(0)
	for n := range 32 {
		v := p(5800, n)
		lo, hi = min(lo, v), max(hi, v)
	}

	if lo != 40 || hi != 80 {
		t.Errorf("Expected swing 40..80, got %d..%d", lo, hi)
	}
}

// fakeConn emulates the bridge firmware
type fakeConn struct {
	mu      sync.Mutex
	in      bytes.Buffer
	adc     int
	frames  []string
	failSet bool
	closed  bool
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := strings.TrimSpace(string(p))
	switch {
	case cmd == "PING":
		f.in.WriteString("PONG\n")
	case cmd == "R":
		fmt.Fprintf(&f.in, "%d\n", f.adc)
	case strings.HasPrefix(cmd, "S "):
		f.frames = append(f.frames, strings.TrimPrefix(cmd, "S "))
		if f.failSet {
			f.in.WriteString("ERR\n")
		} else {
			f.in.WriteString("OK\n")
		}
	default:
		f.in.WriteString("?\n")
	}
	return len(p), nil
}

func (f *fakeConn) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in.Read(p)
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestBridge(t *testing.T) {
	conn := &fakeConn{adc: 199}
	b := NewBridge(conn, WithCalibration(Calibration{Min: 100, Max: 199}))

	if b.IsReady() {
		t.Fatal("Expected bridge not to be ready before handshake")
	}
	if err := b.SetFrequency(5865); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}

	if err := b.Ping(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !b.IsReady() {
		t.Fatal("Expected bridge to be ready")
	}

	if err := b.SetFrequency(5865); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	want := fmt.Sprintf("%07X", FrequencyFrame(5865))
	if len(conn.frames) != 1 || conn.frames[0] != want {
		t.Errorf("Expected frame %s, got %v", want, conn.frames)
	}

	if v := b.ReadStrength(); v != 100 {
		t.Errorf("Expected 100, got %d", v)
	}

	conn.failSet = true
	if err := b.SetFrequency(5800); !errors.Is(err, ErrTuneFailed) {
		t.Errorf("Expected ErrTuneFailed, got %v", err)
	}

	if err := b.SetFrequency(5700); !errors.Is(err, band.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}

	_ = b.Close()
	if !conn.closed || b.IsReady() {
		t.Error("Expected closed bridge not to be ready")
	}
}

// laggingConn answers like the bridge firmware but withholds the next
// responses for a number of reads, each read timing out the way a serial port
// does
type laggingConn struct {
	*fakeConn
	timeouts int
	resets   int
}

func (c *laggingConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeouts > 0 || c.in.Len() == 0 {
		c.timeouts = max(c.timeouts-1, 0)
		return 0, nil
	}
	return c.in.Read(p)
}

func (c *laggingConn) ResetInputBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resets++
	c.in.Reset()
	return nil
}

func TestBridgeResyncAfterTimeout(t *testing.T) {
	conn := &laggingConn{fakeConn: &fakeConn{adc: 199}}
	b := NewBridge(conn, WithCalibration(Calibration{Min: 100, Max: 199}))

	if err := b.Ping(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	conn.timeouts = 1
	if v := b.ReadStrength(); v != 0 {
		t.Errorf("Expected 0 on timeout, got %d", v)
	}
	if conn.resets != 1 {
		t.Errorf("Expected input reset after timeout, got %d resets", conn.resets)
	}

	// the late reading is gone, so the tune gets its own response
	if err := b.SetFrequency(5865); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v := b.ReadStrength(); v != 100 {
		t.Errorf("Expected 100, got %d", v)
	}

	conn.timeouts = 1
	if _, err := b.exchange("R"); !errors.Is(err, errReadTimeout) {
		t.Errorf("Expected errReadTimeout, got %v", err)
	}
}

// slowPort blocks every call until released
type slowPort struct {
	release chan struct{}
}

func (s *slowPort) SetFrequency(uint16) error { <-s.release; return nil }
func (s *slowPort) ReadStrength() uint8       { <-s.release; return 42 }
func (s *slowPort) IsReady() bool             { <-s.release; return true }

func TestWithTimeout(t *testing.T) {
	slow := &slowPort{release: make(chan struct{})}
	p := WithTimeout(slow, 20*time.Millisecond)

	err := p.SetFrequency(5800)
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrTuneFailed) {
		t.Fatalf("Expected ErrTuneFailed and ErrTimeout, got %v", err)
	}

	// still hung: fails fast
	start := time.Now()
	if v := p.ReadStrength(); v != 0 {
		t.Errorf("Expected 0, got %d", v)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("Expected busy port to fail fast, took %v", elapsed)
	}

	close(slow.release)
	time.Sleep(10 * time.Millisecond)

	if v := p.ReadStrength(); v != 42 {
		t.Errorf("Expected 42 once released, got %d", v)
	}
	if !p.IsReady() {
		t.Error("Expected port to be ready once released")
	}
	if err := p.SetFrequency(6100); !errors.Is(err, band.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}
