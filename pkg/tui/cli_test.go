package tui

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/seisqc/seisqc/pkg/qc"
)

func report(stream string, start time.Time, param string, v float64) qc.Report {
	return qc.Report{
		WaveformID: qc.ParseStreamID(stream),
		Start:      start,
		End:        start.Add(5 * time.Minute),
		Parameter:  param,
		Value:      v,
	}
}

func TestResultsGroupsByWindow(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	rows := Results([]qc.Report{
		report("GE.APE..BHZ", t1, "availability", 90),
		report("GE.APE..BHZ", t1, "gaps count", 2),
		report("GE.APE..BHZ", t1, "overlaps count", 0),
		report("CX.PB01..HHZ", t0, "availability", 100),
		report("GE.APE..BHZ", t0, "availability", 50),
		report("GE.APE..BHZ", t0, "latency", 3),
	})

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Stream != "CX.PB01..HHZ" {
		t.Errorf("expected CX first, got %s", rows[0].Stream)
	}
	if !rows[1].Start.Equal(t0) || rows[1].Availability != 50 {
		t.Errorf("unexpected second row %+v", rows[1])
	}
	if rows[2].Availability != 90 || rows[2].Gaps != 2 {
		t.Errorf("unexpected third row %+v", rows[2])
	}
}

func TestRenderResults(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	RenderResults(&buf, []Result{{Stream: "GE.APE..BHZ", Start: t0, End: t0.Add(5 * time.Minute), Availability: 83.33, Gaps: 1}})

	out := buf.String()
	for _, want := range []string{"GE.APE..BHZ", "83.33%", "2024-03-01 00:00:00", "5m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	RenderResults(&buf, nil)
	if !strings.Contains(buf.String(), "no reports") {
		t.Error("empty table not reported")
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, Summary{Entries: 12500, Skipped: 3, Streams: 2, Reports: 6, Duration: 2 * time.Second})
	out := buf.String()
	for _, want := range []string{"12.5K", "Skipped", "6.2K entries/sec"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestProgressReaderPassesData(t *testing.T) {
	r := ProgressReader(strings.NewReader("abcdef"), 6, "test")
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abcdef" {
		t.Errorf("unexpected data %q", data)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{5 * time.Minute, "5m0s"},
		{90 * time.Minute, "1h30m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, got, tt.want)
		}
	}
}
