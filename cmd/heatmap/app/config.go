package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath     string
	SessionID  int64
	OutputFile string
	Format     ImageFormat
	Theme      ColorTheme
	TimeZone   *time.Location

	MinFrequency *uint16
	MaxFrequency *uint16
	MinRSSI      *uint8
	MaxRSSI      *uint8

	CellWidth     int
	CellHeight    int
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		SessionID:  1,
		Format:     ImagePNG,
		Theme:      ClassicTheme,
		TimeZone:   time.Local,
		CellWidth:  defaultCellWidth,
		CellHeight: defaultCellHeight,
	}
}

// Validate checks the configuration and appends the format extension to the
// output file when it is missing
func (c *Config) Validate() error {
	c.Format = ImageFormat(strings.ToLower(string(c.Format)))
	if c.TimeZone == nil {
		c.TimeZone = time.Local
	}

	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.SessionID <= 0:
		return errors.New("session id is required")
	case c.OutputFile == "":
		return errors.New("output file is required")
	}

	if _, ok := validImageFormats[c.Format]; !ok {
		return fmt.Errorf("invalid image format: %s", c.Format)
	}
	if _, err := ParseTheme(string(c.Theme)); err != nil {
		return err
	}

	if c.MinFrequency != nil || c.MaxFrequency != nil {
		r := band.Full()
		if c.MinFrequency != nil {
			r.Start = *c.MinFrequency
		}
		if c.MaxFrequency != nil {
			r.End = *c.MaxFrequency
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("frequency filter: %w", err)
		}
		c.MinFrequency, c.MaxFrequency = &r.Start, &r.End
	}

	if c.MinRSSI != nil && c.MaxRSSI != nil && *c.MinRSSI >= *c.MaxRSSI {
		return fmt.Errorf("min rssi %d must be below max rssi %d", *c.MinRSSI, *c.MaxRSSI)
	}
	if c.CellWidth <= 0 || c.CellHeight <= 0 {
		return errors.New("cell size must be positive")
	}

	if ext := strings.TrimPrefix(filepath.Ext(c.OutputFile), "."); ImageFormat(strings.ToLower(ext)) != c.Format {
		c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	}
	return nil
}

// rssiBounds returns the manual colour bounds, nil when none are set
func (c *Config) rssiBounds() *RSSIBounds {
	if c.MinRSSI == nil && c.MaxRSSI == nil {
		return nil
	}

	b := defaultRSSIBounds()
	if c.MinRSSI != nil {
		b.Min = float64(*c.MinRSSI)
	}
	if c.MaxRSSI != nil {
		b.Max = float64(*c.MaxRSSI)
	}
	return &b
}
