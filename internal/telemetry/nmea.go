package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"go.bug.st/serial"
)

// NMEA reads GGA and RMC sentences from a serial GPS receiver
type NMEA struct {
	port   io.ReadCloser
	mu     sync.RWMutex

	closeOnce sync.Once
	closeErr  error

	last   *Telemetry
	clock  func() time.Time
	logger *slog.Logger
}

// WithNMEALogger sets the logger of the NMEA provider
func WithNMEALogger(logger *slog.Logger) func(*NMEA) {
	return func(n *NMEA) {
		n.logger = logger
	}
}

// OpenNMEA opens a serial GPS receiver
func OpenNMEA(portName string, baudRate int, options ...func(*NMEA)) (*NMEA, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPS port %s: %w", portName, err)
	}

	return NewNMEA(port, options...), nil
}

// NewNMEA creates a provider reading sentences from r
func NewNMEA(r io.ReadCloser, options ...func(*NMEA)) *NMEA {
	n := &NMEA{
		port:   r,
		clock:  time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(n)
	}

	return n
}

// Run reads sentences until the context is cancelled or the port fails
func (n *NMEA) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = n.Close() })
	defer stop()

	scanner := bufio.NewScanner(n.port)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] != '$' {
			continue
		}

		if err := n.handleSentence(line); err != nil {
			n.logger.Debug("NMEA sentence skipped", slog.String("line", line), slog.Any("error", err))
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("error reading GPS port: %w", err)
	}

	return nil
}

func (n *NMEA) handleSentence(line string) error {
	sentence, err := nmea.Parse(line)
	if err != nil {
		return err
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			return nil
		}

		lat, lon, alt := s.Latitude, s.Longitude, s.Altitude
		sats := int(s.NumSatellites)

		n.mu.Lock()
		n.last = &Telemetry{
			Timestamp:  n.clock(),
			Latitude:   &lat,
			Longitude:  &lon,
			Altitude:   &alt,
			Satellites: &sats,
		}
		n.mu.Unlock()

	case nmea.RMC:
		// RMC refreshes coordinates of an existing fix; it has no altitude
		if s.Validity != nmea.ValidRMC {
			return nil
		}

		lat, lon := s.Latitude, s.Longitude

		n.mu.Lock()
		if n.last != nil {
			n.last.Timestamp = n.clock()
			n.last.Latitude = &lat
			n.last.Longitude = &lon
		}
		n.mu.Unlock()
	}

	return nil
}

func (n *NMEA) Get() *Telemetry {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.last.clone()
}

// Close closes the port. It is safe to call Close multiple times.
func (n *NMEA) Close() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.port.Close()
	})
	return n.closeErr
}
