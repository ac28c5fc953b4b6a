package app

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"
)

const (
	defaultCellWidth  = 4
	defaultCellHeight = 4

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

var errNoPasses = errors.New("no passes to render")

// BorderConfig defines the sizes of white space around the waterfall
type BorderConfig struct {
	Top    int // Space for frequency scale and detection markers
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for waterfall visualization
type RenderConfig struct {
	// Time display configuration
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	// Visual configuration
	FontSize     float64
	ColorTheme   ColorTheme
	ColorMapSize int
	CellWidth    int // pixels per channel
	CellHeight   int // pixels per pass

	// Bounds overrides the percentile bounds of the readings
	Bounds *RSSIBounds

	NoAnnotations bool
	BorderConfig  BorderConfig
}

// WaterfallRenderer draws channel x pass readings as an image
type WaterfallRenderer struct {
	config RenderConfig
}

// NewWaterfallRenderer creates a renderer, filling in defaults for zero values
func NewWaterfallRenderer(config RenderConfig) *WaterfallRenderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.ColorMapSize == 0 {
		config.ColorMapSize = DefaultColorMapSize
	}
	if config.CellWidth <= 0 {
		config.CellWidth = defaultCellWidth
	}
	if config.CellHeight <= 0 {
		config.CellHeight = defaultCellHeight
	}

	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	return &WaterfallRenderer{config: config}
}

// Render creates an image of the waterfall with annotations
func (r *WaterfallRenderer) Render(wf *Waterfall) (*image.RGBA, error) {
	if wf.Height() == 0 {
		return nil, errNoPasses
	}

	borders := r.config.BorderConfig
	width := wf.Width() * r.config.CellWidth
	height := wf.Height() * r.config.CellHeight

	img := image.NewRGBA(image.Rect(0, 0, width+borders.Left+borders.Right, height+borders.Top+borders.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(borders.Left, borders.Top, borders.Left+width, borders.Top+height)

	bounds := wf.Histogram.Bounds()
	if r.config.Bounds != nil {
		bounds = *r.config.Bounds
	}
	r.renderWaterfall(img, area, wf, NewColorMapper(r.config.ColorTheme, bounds, r.config.ColorMapSize))

	if r.config.NoAnnotations {
		return img, nil
	}

	ann, err := newAnnotator(annotatorConfig{
		TimeFormat:     r.config.TimeFormat,
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		CellWidth:      r.config.CellWidth,
		CellHeight:     r.config.CellHeight,
		Borders:        borders,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, wf); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

// renderWaterfall fills one cell per channel and pass
func (r *WaterfallRenderer) renderWaterfall(img *image.RGBA, area image.Rectangle, wf *Waterfall, cm *ColorMapper) {
	for y, row := range wf.Rows {
		for x, rssi := range row {
			cell := image.Rect(
				area.Min.X+x*r.config.CellWidth,
				area.Min.Y+y*r.config.CellHeight,
				area.Min.X+(x+1)*r.config.CellWidth,
				area.Min.Y+(y+1)*r.config.CellHeight,
			)
			draw.Draw(img, cell.Intersect(area), image.NewUniform(cm.Color(rssi)), image.Point{}, draw.Src)
		}
	}
}
