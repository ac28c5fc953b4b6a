package app

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme is a predefined colour scheme for strength visualization
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256
)

var (
	noDataColor  color.Color = color.Black
	videoColor   color.Color = colorful.Hsv(0, 1, 0.95)
	carrierColor color.Color = colorful.Hsv(35, 1, 0.95)

	thermalStops = []colorful.Color{
		{R: 0, G: 0, B: 0},
		{R: 1, G: 0, B: 0},
		{R: 1, G: 1, B: 0},
		{R: 1, G: 1, B: 1},
	}
)

// ParseTheme validates a theme name
func ParseTheme(name string) (ColorTheme, error) {
	switch t := ColorTheme(name); t {
	case ClassicTheme, GrayscaleTheme, JungleTheme, ThermalTheme, MarineTheme:
		return t, nil
	default:
		return "", fmt.Errorf("unknown colour theme '%s'", name)
	}
}

// ColorMapper maps readings onto pre-computed theme colours within bounds
type ColorMapper struct {
	colorMap  []color.Color
	boundsMin float64
	rssiPerIx float64
}

// NewColorMapper creates a colour mapper with size pre-computed colours
func NewColorMapper(theme ColorTheme, bounds RSSIBounds, size int) *ColorMapper {
	if size < 2 {
		size = DefaultColorMapSize
	}

	fn := themeFunc(theme)
	cm := &ColorMapper{
		colorMap:  make([]color.Color, size),
		boundsMin: bounds.Min,
		rssiPerIx: math.Max(bounds.Max-bounds.Min, 1) / float64(size-1),
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = fn(float64(i) / float64(size-1)).Clamped()
	}

	return cm
}

// Color returns the colour of a reading; 0 (no reading) is drawn black
func (cm *ColorMapper) Color(rssi uint8) color.Color {
	if rssi == 0 {
		return noDataColor
	}

	index := int((float64(rssi) - cm.boundsMin) / cm.rssiPerIx)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= len(cm.colorMap) {
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[index]
}

func themeFunc(theme ColorTheme) func(float64) colorful.Color {
	switch theme {
	case GrayscaleTheme:
		return func(v float64) colorful.Color {
			g := math.Pow(v, 0.7)
			return colorful.Color{R: g, G: g, B: g}
		}

	case JungleTheme:
		return func(v float64) colorful.Color {
			return colorful.Hsv(120-(v*60), 1.0, 0.3+(math.Pow(v, 0.6)*0.7))
		}

	case ThermalTheme:
		return func(v float64) colorful.Color {
			segments := float64(len(thermalStops) - 1)
			i := min(int(v*segments), len(thermalStops)-2)
			return thermalStops[i].BlendRgb(thermalStops[i+1], v*segments-float64(i))
		}

	case MarineTheme:
		return func(v float64) colorful.Color {
			return colorful.Hsv(240-(v*60), 1.0-(v*0.8), 0.3+(math.Pow(v, 0.6)*0.7))
		}

	default:
		return func(v float64) colorful.Color {
			return colorful.Hsv(240-(v*240), 0.9+(v*0.1), 0.25+math.Pow(v, 0.7)*0.75)
		}
	}
}
