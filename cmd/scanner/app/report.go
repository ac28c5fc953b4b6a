package app

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/fpv-interceptor/internal/registry"
	"github.com/roman-kulish/fpv-interceptor/internal/scanner"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	videoStyle  = cellStyle.Foreground(lipgloss.Color("9")).Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

// formatFrequency renders a channel as e.g. "5.8 GHz (5800)"
func formatFrequency(mhz uint16) string {
	return fmt.Sprintf("%s (%d)", humanize.SIWithDigits(float64(mhz)*1e6, 3, "Hz"), mhz)
}

// renderSignals renders the detected signals as a table
func renderSignals(signals []registry.DetectedSignal) string {
	rows := make([][]string, 0, len(signals))
	for _, s := range signals {
		video := "no"
		if s.VideoDetected {
			video = "yes"
		}
		rows = append(rows, []string{
			formatFrequency(s.Frequency),
			strconv.Itoa(int(s.RSSI)),
			video,
			humanize.Time(s.DetectedAt),
			humanize.Time(s.Timestamp),
			s.Artifact,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("FREQUENCY", "RSSI", "VIDEO", "FIRST SEEN", "LAST SEEN", "ARTIFACT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 2 && rows[row][2] == "yes":
				return videoStyle
			default:
				return cellStyle
			}
		})

	return t.Render()
}

// PrintReport writes the run summary and the detected signals
func PrintReport(w io.Writer, result scanner.Result, signals []registry.DetectedSignal) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s after %s", result.Outcome, result.Duration.Round(time.Millisecond))))
	fmt.Fprintf(w, "readings: %s, passes: %s, video detections: %s, tune failures: %s\n",
		humanize.Comma(int64(result.Steps)),
		humanize.Comma(int64(result.Passes)),
		humanize.Comma(int64(result.Detections)),
		humanize.Comma(int64(result.TuneFailures)),
	)

	if len(signals) == 0 {
		fmt.Fprintln(w, "no signals detected")
		return
	}

	fmt.Fprintln(w, renderSignals(signals))
}
