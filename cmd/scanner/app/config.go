package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/registry"
	"github.com/roman-kulish/fpv-interceptor/internal/scanner"
	"github.com/roman-kulish/fpv-interceptor/internal/tuner"
)

const (
	ReceiverStub      ReceiverType = "stub"
	ReceiverSimulated ReceiverType = "simulated"
	ReceiverSerial    ReceiverType = "serial"

	TelemetryNone   TelemetryMode = "none"
	TelemetryManual TelemetryMode = "manual"
	TelemetryGPSD   TelemetryMode = "gpsd"
	TelemetryNMEA   TelemetryMode = "nmea"

	defaultDataDirectory = "data"
	defaultMaxBatchSize  = 100
	defaultCallTimeout   = time.Second
)

type ReceiverType string

type TelemetryMode string

// ConfigError is a custom error type for configuration errors
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// Duration is a time.Duration written as a Go duration string, e.g. "100ms"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings" json:"-"`
	Receiver  ReceiverConfig  `yaml:"receiver" json:"receiver"`
	Scan      ScanConfig      `yaml:"scan" json:"scan"`
	Storage   StorageConfig   `yaml:"storage" json:"-"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// ReceiverConfig selects and configures the tuner
type ReceiverConfig struct {
	Type        ReceiverType      `yaml:"type" json:"type"`
	SerialPort  string            `yaml:"serialPort,omitempty" json:"serialPort,omitempty"`
	BaudRate    int               `yaml:"baudRate,omitempty" json:"baudRate,omitempty"`
	Calibration tuner.Calibration `yaml:"calibration" json:"calibration"`
	CallTimeout Duration          `yaml:"callTimeout" json:"callTimeout"` // 0 disables the per-call bound

	// stub and simulated receivers
	Seed     uint64          `yaml:"seed,omitempty" json:"seed,omitempty"`
	Noise    uint8           `yaml:"noise,omitempty" json:"noise,omitempty"`
	Carriers []tuner.Carrier `yaml:"carriers,omitempty" json:"carriers,omitempty"`
}

// ScanConfig holds the controller timings and the sweep range
type ScanConfig struct {
	FrequencyStart     uint16   `yaml:"frequencyStart" json:"frequencyStart"`
	FrequencyEnd       uint16   `yaml:"frequencyEnd" json:"frequencyEnd"`
	DwellTime          Duration `yaml:"dwellTime" json:"dwellTime"`
	StabilizationDelay Duration `yaml:"stabilizationDelay" json:"stabilizationDelay"`
	CyclePause         Duration `yaml:"cyclePause" json:"cyclePause"`
	StatusInterval     Duration `yaml:"statusInterval" json:"statusInterval"`
	MaxSignals         int      `yaml:"maxSignals" json:"maxSignals"`
}

// Range returns the configured sweep range
func (c ScanConfig) Range() band.Range {
	return band.Range{Start: c.FrequencyStart, End: c.FrequencyEnd}
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// TelemetryConfig represents the position source used to tag captures
type TelemetryConfig struct {
	Mode       TelemetryMode `yaml:"mode" json:"mode"`
	Latitude   float64       `yaml:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude  float64       `yaml:"longitude,omitempty" json:"longitude,omitempty"`
	Altitude   float64       `yaml:"altitude,omitempty" json:"altitude,omitempty"`
	Address    string        `yaml:"address,omitempty" json:"address,omitempty"` // gpsd
	SerialPort string        `yaml:"serialPort,omitempty" json:"serialPort,omitempty"`
	BaudRate   int           `yaml:"baudRate,omitempty" json:"baudRate,omitempty"`
}

// DefaultConfig returns a configuration which runs the stub receiver over the
// whole band without persistence
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Receiver: ReceiverConfig{
			Type:        ReceiverStub,
			BaudRate:    tuner.DefaultBaudRate,
			Calibration: tuner.DefaultCalibration(),
			CallTimeout: Duration(defaultCallTimeout),
			Seed:        1,
		},
		Scan: ScanConfig{
			FrequencyStart:     band.MinFrequency,
			FrequencyEnd:       band.MaxFrequency,
			DwellTime:          Duration(scanner.DefaultDwellTime),
			StabilizationDelay: Duration(scanner.DefaultStabilizationDelay),
			CyclePause:         Duration(scanner.DefaultCyclePause),
			StatusInterval:     Duration(scanner.DefaultStatusInterval),
			MaxSignals:         registry.DefaultCapacity,
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
			MaxBatchSize:  defaultMaxBatchSize,
		},
		Telemetry: TelemetryConfig{Mode: TelemetryNone},
	}
}

// LoadConfig reads the configuration file over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if err = yaml.Unmarshal(p, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// WriteConfig writes the configuration as YAML
func WriteConfig(path string, config *Config) error {
	p, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	if err = os.WriteFile(path, p, 0o644); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}
	return nil
}

// Level parses the configured log level
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, NewConfigError(fmt.Sprintf("settings: invalid log level %q", s.LogLevel))
	}
	return level, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, err)
	}

	switch c.Receiver.Type {
	case ReceiverStub, ReceiverSimulated:
	case ReceiverSerial:
		if c.Receiver.SerialPort == "" {
			errs = append(errs, NewConfigError("receiver: serial port is required"))
		}
		if err := c.Receiver.Calibration.Validate(); err != nil {
			errs = append(errs, NewConfigError("receiver: "+err.Error()))
		}
	default:
		errs = append(errs, NewConfigError(fmt.Sprintf("receiver: unknown type '%s'", c.Receiver.Type)))
	}
	if c.Receiver.CallTimeout < 0 {
		errs = append(errs, NewConfigError("receiver: call timeout must not be negative"))
	}
	for _, carrier := range c.Receiver.Carriers {
		if err := band.Validate(carrier.Frequency); err != nil {
			errs = append(errs, NewConfigError(fmt.Sprintf("receiver: carrier: %s", err)))
		}
	}

	if err := c.Scan.Range().Validate(); err != nil {
		errs = append(errs, NewConfigError(fmt.Sprintf("scan: %s", err)))
	}
	for _, d := range []struct {
		name  string
		value Duration
	}{
		{name: "dwell time", value: c.Scan.DwellTime},
		{name: "stabilization delay", value: c.Scan.StabilizationDelay},
		{name: "cycle pause", value: c.Scan.CyclePause},
		{name: "status interval", value: c.Scan.StatusInterval},
	} {
		if d.value < 0 {
			errs = append(errs, NewConfigError(fmt.Sprintf("scan: %s must not be negative: %s", d.name, d.value)))
		}
	}
	if c.Scan.MaxSignals <= 0 {
		errs = append(errs, NewConfigError("scan: max signals must be positive"))
	}

	if c.Storage.Enabled && c.Storage.MaxBatchSize <= 0 {
		errs = append(errs, NewConfigError("storage: max batch size must be positive"))
	}

	switch c.Telemetry.Mode {
	case "", TelemetryNone, TelemetryGPSD:
	case TelemetryManual:
		if c.Telemetry.Latitude < -90 || c.Telemetry.Latitude > 90 || c.Telemetry.Longitude < -180 || c.Telemetry.Longitude > 180 {
			errs = append(errs, NewConfigError("telemetry: manual position is out of range"))
		}
	case TelemetryNMEA:
		if c.Telemetry.SerialPort == "" {
			errs = append(errs, NewConfigError("telemetry: serial port is required"))
		}
	default:
		errs = append(errs, NewConfigError(fmt.Sprintf("telemetry: unknown mode '%s'", c.Telemetry.Mode)))
	}

	return errors.Join(errs...)
}
