// Package export turns report archives into files for analysts: daily
// summaries computed with DuckDB and Excel workbooks.
package export

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// SummaryExporter aggregates the Parquet files written by the report
// archive into one row per stream and UTC day.
type SummaryExporter struct {
	db          *sql.DB
	compression string
}

// NewSummaryExporter creates an exporter on an in-memory DuckDB.
func NewSummaryExporter(compression string) (*SummaryExporter, error) {
	if compression == "" {
		compression = "snappy"
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	// Days are UTC days. Without the ICU extension timestamps are UTC already.
	_, _ = db.Exec(`SET TimeZone = 'UTC'`)
	return &SummaryExporter{db: db, compression: compression}, nil
}

// DailySummary reads every *.parquet file in archiveDir and writes the
// summary to outPath. It returns the number of summary rows.
func (e *SummaryExporter) DailySummary(archiveDir, outPath string) (int64, error) {
	files, err := filepath.Glob(filepath.Join(archiveDir, "*.parquet"))
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no parquet files in %s", archiveDir)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = sqlString(f)
	}

	_, err = e.db.Exec(fmt.Sprintf(`
		CREATE OR REPLACE TABLE daily AS
		SELECT
			network_code || '.' || station_code || '.' || location_code || '.' || channel_code AS stream,
			CAST(DATE_TRUNC('day', "start") AS DATE) AS day,
			COUNT(*) FILTER (WHERE parameter = 'availability') AS windows,
			AVG(value) FILTER (WHERE parameter = 'availability') AS mean_availability,
			MIN(value) FILTER (WHERE parameter = 'availability') AS min_availability,
			SUM(value) FILTER (WHERE parameter = 'gaps count') AS gaps,
			SUM(value) FILTER (WHERE parameter = 'overlaps count') AS overlaps
		FROM read_parquet([%s])
		GROUP BY 1, 2
		ORDER BY 1, 2
	`, strings.Join(quoted, ", ")))
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate reports: %w", err)
	}

	_, err = e.db.Exec(fmt.Sprintf(`COPY daily TO %s (FORMAT PARQUET, COMPRESSION '%s')`,
		sqlString(outPath), e.compression))
	if err != nil {
		return 0, fmt.Errorf("failed to write summary: %w", err)
	}

	var n int64
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM daily`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Rows returns the summary computed by the last DailySummary call.
func (e *SummaryExporter) Rows() ([]DailyRow, error) {
	rows, err := e.db.Query(`
		SELECT stream, CAST(day AS VARCHAR), windows,
			COALESCE(mean_availability, 0), COALESCE(min_availability, 0),
			COALESCE(gaps, 0), COALESCE(overlaps, 0)
		FROM daily ORDER BY stream, day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyRow
	for rows.Next() {
		var r DailyRow
		if err := rows.Scan(&r.Stream, &r.Day, &r.Windows, &r.MeanAvailability, &r.MinAvailability, &r.Gaps, &r.Overlaps); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases resources.
func (e *SummaryExporter) Close() error {
	return e.db.Close()
}

// DailyRow is one row of the daily summary.
type DailyRow struct {
	Stream           string  `json:"stream"`
	Day              string  `json:"day"`
	Windows          int64   `json:"windows"`
	MeanAvailability float64 `json:"mean_availability"`
	MinAvailability  float64 `json:"min_availability"`
	Gaps             float64 `json:"gaps"`
	Overlaps         float64 `json:"overlaps"`
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
