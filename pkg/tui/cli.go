// Package tui renders QC results and progress on the terminal.
// Simple, streaming, no full-screen UI.
package tui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/seisqc/seisqc/pkg/qc"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
)

// Result is one row of the availability table.
type Result struct {
	Stream       string
	Start        time.Time
	End          time.Time
	Availability float64
	Gaps         float64
	Overlaps     float64
}

// Results groups availability reports by stream and window. Reports of
// other parameters are ignored. Rows are sorted by stream, then start.
func Results(reports []qc.Report) []Result {
	type key struct {
		stream     string
		start, end int64
	}
	byKey := make(map[key]*Result)
	var order []key

	for _, r := range reports {
		k := key{r.WaveformID.String(), r.Start.UnixNano(), r.End.UnixNano()}
		row, ok := byKey[k]
		if !ok {
			row = &Result{Stream: k.stream, Start: r.Start, End: r.End}
			byKey[k] = row
			order = append(order, k)
		}
		switch r.Parameter {
		case qc.AvailabilityParameters[0]:
			row.Availability = r.Value
		case qc.AvailabilityParameters[1]:
			row.Gaps = r.Value
		case qc.AvailabilityParameters[2]:
			row.Overlaps = r.Value
		}
	}

	rows := make([]Result, 0, len(order))
	for _, k := range order {
		rows = append(rows, *byKey[k])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Stream != rows[j].Stream {
			return rows[i].Stream < rows[j].Stream
		}
		return rows[i].Start.Before(rows[j].Start)
	})
	return rows
}

// RenderResults writes the availability table.
func RenderResults(w io.Writer, rows []Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ WAVEFORM AVAILABILITY"))
	fmt.Fprintln(w)

	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  no reports"))
		fmt.Fprintln(w)
		return
	}

	width := len("stream")
	for _, r := range rows {
		width = max(width, len(r.Stream))
	}
	col := cellStyle.Width(width + 2)

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		col.Render("stream"),
		cellStyle.Width(22).Render("start"),
		cellStyle.Width(10).Render("window"),
		cellStyle.Width(12).Render("available"),
		cellStyle.Width(6).Render("gaps"),
		cellStyle.Render("overlaps"),
	)
	fmt.Fprintln(w, "  "+mutedStyle.Render(header))
	fmt.Fprintln(w, "  "+mutedStyle.Render(strings.Repeat("─", lipgloss.Width(header))))

	for _, r := range rows {
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			col.Render(titleStyle.Render(r.Stream)),
			cellStyle.Width(22).Render(r.Start.UTC().Format("2006-01-02 15:04:05")),
			cellStyle.Width(10).Render(formatDuration(r.End.Sub(r.Start))),
			cellStyle.Width(12).Render(availabilityStyle(r.Availability).Render(fmt.Sprintf("%.2f%%", r.Availability))),
			cellStyle.Width(6).Render(fmt.Sprintf("%.0f", r.Gaps)),
			cellStyle.Render(fmt.Sprintf("%.0f", r.Overlaps)),
		)
		fmt.Fprintln(w, "  "+line)
	}
	fmt.Fprintln(w)
}

func availabilityStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 99.9:
		return successStyle
	case pct >= 90:
		return warningStyle
	default:
		return accentStyle
	}
}

// Summary describes an evaluation run.
type Summary struct {
	Entries  int64
	Skipped  int64
	Streams  int
	Reports  int
	Duration time.Duration
}

// PrintSummary prints totals after an evaluation.
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintln(w, successStyle.Render("  ✓ EVALUATION COMPLETE"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Entries:"), titleStyle.Render(formatNumber(s.Entries)))
	if s.Skipped > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Skipped:"), warningStyle.Render(formatNumber(s.Skipped)))
	}
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Streams:"), titleStyle.Render(fmt.Sprintf("%d", s.Streams)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Reports:"), titleStyle.Render(fmt.Sprintf("%d", s.Reports)))
	if s.Duration > 0 {
		rate := float64(s.Entries) / s.Duration.Seconds()
		fmt.Fprintf(w, "  %s %s %s\n",
			mutedStyle.Render("Time:"),
			titleStyle.Render(formatDuration(s.Duration)),
			mutedStyle.Render(fmt.Sprintf("(%s entries/sec)", formatNumber(int64(rate)))))
	}
	fmt.Fprintln(w)
}

// ProgressReader wraps r with a byte progress bar on stderr. When size is
// unknown (-1) a spinner is shown instead.
func ProgressReader(r io.Reader, size int64, description string) io.Reader {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	pr := progressbar.NewReader(r, bar)
	return &pr
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
