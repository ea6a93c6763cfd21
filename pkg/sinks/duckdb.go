package sinks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/seisqc/seisqc/pkg/qc"
)

// DuckDBTable is the table reports are inserted into.
const DuckDBTable = "waveform_quality"

// DuckDB inserts reports into a DuckDB database.
type DuckDB struct {
	db   *sql.DB
	path string
}

// NewDuckDB opens the database at path ("" for in-memory) and creates the
// report table if needed.
func NewDuckDB(path string) (*DuckDB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	s := &DuckDB{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *DuckDB) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ` + DuckDBTable + ` (
			id                VARCHAR PRIMARY KEY,
			network_code      VARCHAR NOT NULL,
			station_code      VARCHAR NOT NULL,
			location_code     VARCHAR NOT NULL,
			channel_code      VARCHAR NOT NULL,
			creator_id        VARCHAR,
			created           TIMESTAMP NOT NULL,
			start_time        TIMESTAMP NOT NULL,
			end_time          TIMESTAMP NOT NULL,
			type              VARCHAR NOT NULL,
			parameter         VARCHAR NOT NULL,
			value             DOUBLE NOT NULL,
			lower_uncertainty DOUBLE,
			upper_uncertainty DOUBLE,
			window_length     DOUBLE
		);

		CREATE INDEX IF NOT EXISTS idx_wq_stream ON ` + DuckDBTable + `(network_code, station_code, location_code, channel_code);
		CREATE INDEX IF NOT EXISTS idx_wq_end ON ` + DuckDBTable + `(end_time);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Name returns "duckdb".
func (s *DuckDB) Name() string { return "duckdb" }

// Send inserts reports in one transaction.
func (s *DuckDB) Send(ctx context.Context, reports []qc.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+DuckDBTable+` (
			id, network_code, station_code, location_code, channel_code,
			creator_id, created, start_time, end_time, type, parameter,
			value, lower_uncertainty, upper_uncertainty, window_length
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range reports {
		_, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			r.WaveformID.NetworkCode,
			r.WaveformID.StationCode,
			r.WaveformID.LocationCode,
			r.WaveformID.ChannelCode,
			r.CreatorID,
			r.Created,
			r.Start,
			r.End,
			r.Type,
			r.Parameter,
			r.Value,
			r.LowerUncertainty,
			r.UpperUncertainty,
			r.WindowLength,
		)
		if err != nil {
			return fmt.Errorf("failed to insert report: %w", err)
		}
	}

	return tx.Commit()
}

// Count returns the number of stored reports for parameter, or all
// reports if parameter is empty.
func (s *DuckDB) Count(ctx context.Context, parameter string) (int64, error) {
	query := "SELECT COUNT(*) FROM " + DuckDBTable
	var args []interface{}
	if parameter != "" {
		query += " WHERE parameter = ?"
		args = append(args, parameter)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database.
func (s *DuckDB) Close() error {
	return s.db.Close()
}
