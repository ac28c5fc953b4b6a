package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi            = 72.0
	fontSize       = 12.0
	tickMarkLength = 5
	markerHeight   = 6
	pixelsPerLabel = 80
	rowsPerLabel   = 3 // in font heights
)

// frequency label steps in MHz
var frequencySteps = []int{1, 2, 5, 10, 25, 50, 100}

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	CellWidth      int
	CellHeight     int
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, wf *Waterfall) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *Waterfall) error
	}{
		{"drawing frequency scale", a.drawFrequencyScale},
		{"drawing time scale", a.drawTimeScale},
		{"drawing detection markers", a.drawDetections},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(img, wf); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// columnX returns the x coordinate of the centre of a channel column
func (a *annotator) columnX(wf *Waterfall, mhz uint16) int {
	return a.config.Borders.Left + int(mhz-wf.FrequencyMin)*a.config.CellWidth + a.config.CellWidth/2
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, wf *Waterfall) error {
	step := calculateFrequencyStep(a.config.CellWidth)
	textY := a.config.Borders.Top - markerHeight - tickMarkLength - 4

	first := (int(wf.FrequencyMin) + step - 1) / step * step
	for mhz := first; mhz <= int(wf.FrequencyMax); mhz += step {
		x := a.columnX(wf, uint16(mhz))

		for y := a.config.Borders.Top - tickMarkLength; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(uint16(mhz))
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, wf *Waterfall) error {
	metrics := a.fontFace.Metrics()
	every := max(1, rowsPerLabel*a.fontHeight()/a.config.CellHeight)

	for row := 0; row < wf.Height(); row += every {
		imgY := a.config.Borders.Top + row*a.config.CellHeight

		for x := a.config.Borders.Left - tickMarkLength; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := wf.passTime(row).In(a.config.Location).Format(a.config.TimeFormat)
		textY := imgY + a.fontHeight()/2 - metrics.Descent.Round()
		if _, err := a.context.DrawString(label, freetype.Pt(10, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

// drawDetections marks detected frequencies above the waterfall, video
// detections in red
func (a *annotator) drawDetections(img *image.RGBA, wf *Waterfall) error {
	freqs := make([]uint16, 0, len(wf.Detections))
	for mhz := range wf.Detections {
		if mhz >= wf.FrequencyMin && mhz <= wf.FrequencyMax {
			freqs = append(freqs, mhz)
		}
	}
	slices.Sort(freqs)

	for _, mhz := range freqs {
		c := carrierColor
		if wf.Detections[mhz] {
			c = videoColor
		}

		x := a.columnX(wf, mhz)
		half := max(a.config.CellWidth/2, 2)
		marker := image.Rect(x-half, a.config.Borders.Top-markerHeight, x+half+1, a.config.Borders.Top)
		draw.Draw(img, marker, image.NewUniform(c), image.Point{}, draw.Src)
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, wf *Waterfall) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Band: %s - %s", formatFrequency(wf.FrequencyMin), formatFrequency(wf.FrequencyMax)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		wf.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		wf.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%s passes", humanize.Comma(int64(wf.Height()))))

	if n := len(wf.Detections); n > 0 {
		sb.WriteString("; ")
		sb.WriteString(fmt.Sprintf("%d signals", n))
	}

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - metrics.Descent.Round()

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.Borders.Left, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// calculateFrequencyStep picks the smallest label step keeping labels apart
func calculateFrequencyStep(cellWidth int) int {
	for _, step := range frequencySteps {
		if step*cellWidth >= pixelsPerLabel {
			return step
		}
	}
	return frequencySteps[len(frequencySteps)-1]
}

// formatFrequency renders MHz as e.g. "5.865 GHz"
func formatFrequency(mhz uint16) string {
	return humanize.SIWithDigits(float64(mhz)*1e6, 4, "Hz")
}
