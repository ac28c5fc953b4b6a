package tuner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 250 * time.Millisecond

	// ADC counts of the bridge microcontroller
	adcMaxCount = 1023

	responsePong = "PONG"
	responseOK   = "OK"
)

// errReadTimeout is returned when the port read timeout elapses without data
var errReadTimeout = errors.New("read timeout")

// Calibration maps raw ADC counts of the RSSI line onto the 0..100 scale.
// Counts at or below Min read 1 (a live but weak signal), counts at or above
// Max read 100.
type Calibration struct {
	Min uint16 `yaml:"min"`
	Max uint16 `yaml:"max"`
}

// DefaultCalibration covers the RSSI pin swing of a module powered at 3.3 V
func DefaultCalibration() Calibration {
	return Calibration{Min: 90, Max: 650}
}

func (c Calibration) Validate() error {
	if c.Max <= c.Min {
		return fmt.Errorf("calibration max %d must be above min %d", c.Max, c.Min)
	}
	if c.Max > adcMaxCount {
		return fmt.Errorf("calibration max %d is above ADC range %d", c.Max, adcMaxCount)
	}
	return nil
}

// Scale converts an ADC count to the normalised strength; 0 stays 0
func (c Calibration) Scale(count int) uint8 {
	if count <= 0 {
		return 0
	}
	if count <= int(c.Min) {
		return 1
	}
	if count >= int(c.Max) {
		return 100
	}

	v := 1 + (count-int(c.Min))*99/int(c.Max-c.Min)
	return uint8(v)
}

// Bridge drives an RX5808 module through a serial-attached microcontroller that
// bit-bangs the SPI frames and samples the RSSI pin. The bridge speaks a line
// protocol:
//
//	PING          -> PONG
//	S <frame hex> -> OK
//	R             -> <adc count>
type Bridge struct {
	mu          sync.Mutex
	conn        io.ReadWriteCloser
	reader      *bufio.Reader
	calibration Calibration
	ready       atomic.Bool
	logger      *slog.Logger
}

// WithBridgeLogger sets the logger of the bridge
func WithBridgeLogger(logger *slog.Logger) func(*Bridge) {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithCalibration sets the ADC calibration window
func WithCalibration(c Calibration) func(*Bridge) {
	return func(b *Bridge) {
		b.calibration = c
	}
}

// OpenBridge opens the serial port and performs the PING handshake
func OpenBridge(portName string, baudRate int, options ...func(*Bridge)) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bridge port %s: %w", ErrNotReady, portName, err)
	}

	if err = port.SetReadTimeout(DefaultReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: failed to set read timeout on %s: %w", ErrNotReady, portName, err)
	}

	b := NewBridge(port, options...)
	if err = b.Ping(); err != nil {
		_ = port.Close()
		return nil, err
	}

	b.logger.Info("receiver bridge connected", slog.String("port", portName), slog.Int("baudRate", baudRate))
	return b, nil
}

// NewBridge wraps an already opened connection. The bridge is not ready until
// a successful Ping.
func NewBridge(conn io.ReadWriteCloser, options ...func(*Bridge)) *Bridge {
	b := &Bridge{
		conn:        conn,
		reader:      bufio.NewReader(timeoutReader{conn}),
		calibration: DefaultCalibration(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(b)
	}

	return b
}

// Ping checks the bridge is alive and marks it ready
func (b *Bridge) Ping() error {
	resp, err := b.exchange("PING")
	if err != nil {
		b.ready.Store(false)
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if resp != responsePong {
		b.ready.Store(false)
		return fmt.Errorf("%w: unexpected handshake response %q", ErrNotReady, resp)
	}

	b.ready.Store(true)
	return nil
}

func (b *Bridge) SetFrequency(mhz uint16) error {
	if err := band.Validate(mhz); err != nil {
		return err
	}
	if !b.ready.Load() {
		return fmt.Errorf("%w: %w", ErrTuneFailed, ErrNotReady)
	}

	frame := FrequencyFrame(mhz)
	resp, err := b.exchange(fmt.Sprintf("S %07X", frame))
	if err != nil {
		return fmt.Errorf("%w: %d MHz: %w", ErrTuneFailed, mhz, err)
	}
	if resp != responseOK {
		return fmt.Errorf("%w: %d MHz: bridge replied %q", ErrTuneFailed, mhz, resp)
	}

	return nil
}

func (b *Bridge) ReadStrength() uint8 {
	if !b.ready.Load() {
		return 0
	}

	resp, err := b.exchange("R")
	if err != nil {
		b.logger.Debug("rssi read failed", slog.Any("error", err))
		return 0
	}

	count, err := strconv.Atoi(resp)
	if err != nil || count < 0 || count > adcMaxCount {
		b.logger.Debug("malformed rssi reading", slog.String("response", resp))
		return 0
	}

	return b.calibration.Scale(count)
}

func (b *Bridge) IsReady() bool {
	return b.ready.Load()
}

// Close closes the underlying connection
func (b *Bridge) Close() error {
	b.ready.Store(false)
	return b.conn.Close()
}

// exchange writes one command line and reads one response line. A failed
// exchange drops pending input so a late response cannot pair with the next
// command.
func (b *Bridge) exchange(cmd string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := io.WriteString(b.conn, cmd+"\n"); err != nil {
		b.resync()
		return "", fmt.Errorf("write %q: %w", cmd, err)
	}

	line, err := b.reader.ReadString('\n')
	if err != nil {
		b.resync()
		return "", fmt.Errorf("read response to %q: %w", cmd, err)
	}

	return strings.TrimSpace(line), nil
}

// resync discards buffered and unread input; b.mu must be held
func (b *Bridge) resync() {
	if r, ok := b.conn.(interface{ ResetInputBuffer() error }); ok {
		if err := r.ResetInputBuffer(); err != nil {
			b.logger.Debug("failed to reset input buffer", slog.Any("error", err))
		}
	}
	b.reader.Reset(timeoutReader{b.conn})
}

// timeoutReader reports an expired port read timeout, which reads (0, nil),
// as errReadTimeout
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, errReadTimeout
	}
	return n, err
}
