package sinks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seisqc/seisqc/pkg/qc"
)

// Uploader ships a closed file to remote storage.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// ParquetConfig configures the Parquet sink.
type ParquetConfig struct {
	// Dir receives the files.
	Dir string

	// RollReports closes the current file after this many rows.
	RollReports int

	// Compression is snappy, gzip, zstd, lz4 or none.
	Compression string

	// Uploader is called for every closed file (optional).
	Uploader Uploader
}

var reportSchema = arrow.NewSchema([]arrow.Field{
	{Name: "network_code", Type: arrow.BinaryTypes.String},
	{Name: "station_code", Type: arrow.BinaryTypes.String},
	{Name: "location_code", Type: arrow.BinaryTypes.String},
	{Name: "channel_code", Type: arrow.BinaryTypes.String},
	{Name: "creator_id", Type: arrow.BinaryTypes.String},
	{Name: "created", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "start", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "end", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "type", Type: arrow.BinaryTypes.String},
	{Name: "parameter", Type: arrow.BinaryTypes.String},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	{Name: "lower_uncertainty", Type: arrow.PrimitiveTypes.Float64},
	{Name: "upper_uncertainty", Type: arrow.PrimitiveTypes.Float64},
	{Name: "window_length", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Parquet writes reports to rolling Parquet files using Apache Arrow.
type Parquet struct {
	cfg       ParquetConfig
	allocator memory.Allocator
	logger    *zap.Logger

	mu       sync.Mutex
	file     *os.File
	path     string
	writer   *pqarrow.FileWriter
	rows     int
	files    []string
	closed   bool
	totalRow int64
}

// NewParquet creates a Parquet sink. Files are opened lazily.
func NewParquet(cfg ParquetConfig, logger *zap.Logger) (*Parquet, error) {
	if cfg.RollReports <= 0 {
		cfg.RollReports = 10000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parquet{
		cfg:       cfg,
		allocator: memory.NewGoAllocator(),
		logger:    logger.Named("parquet"),
	}, nil
}

// Name returns "parquet".
func (p *Parquet) Name() string { return "parquet" }

func (p *Parquet) open() error {
	name := fmt.Sprintf("scqc-%s-%s.parquet", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(p.cfg.Dir, name)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(mapCompression(p.cfg.Compression)),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	writer, err := pqarrow.NewFileWriter(reportSchema, file, writerProps, arrowProps)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	p.file, p.path, p.writer, p.rows = file, path, writer, 0
	return nil
}

// Send appends reports as one row group batch.
func (p *Parquet) Send(ctx context.Context, reports []qc.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("parquet sink closed")
	}
	if len(reports) == 0 {
		return nil
	}
	if p.writer == nil {
		if err := p.open(); err != nil {
			return err
		}
	}

	batch := p.buildRecord(reports)
	defer batch.Release()

	if err := p.writer.Write(batch); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	p.rows += len(reports)
	p.totalRow += int64(len(reports))

	if p.rows >= p.cfg.RollReports {
		return p.roll(ctx)
	}
	return nil
}

func (p *Parquet) buildRecord(reports []qc.Report) arrow.Record {
	b := array.NewRecordBuilder(p.allocator, reportSchema)
	defer b.Release()

	str := func(i int) *array.StringBuilder { return b.Field(i).(*array.StringBuilder) }
	ts := func(i int) *array.TimestampBuilder { return b.Field(i).(*array.TimestampBuilder) }
	f64 := func(i int) *array.Float64Builder { return b.Field(i).(*array.Float64Builder) }

	for _, r := range reports {
		str(0).Append(r.WaveformID.NetworkCode)
		str(1).Append(r.WaveformID.StationCode)
		str(2).Append(r.WaveformID.LocationCode)
		str(3).Append(r.WaveformID.ChannelCode)
		str(4).Append(r.CreatorID)
		ts(5).Append(arrow.Timestamp(r.Created.UnixMicro()))
		ts(6).Append(arrow.Timestamp(r.Start.UnixMicro()))
		ts(7).Append(arrow.Timestamp(r.End.UnixMicro()))
		str(8).Append(r.Type)
		str(9).Append(r.Parameter)
		f64(10).Append(r.Value)
		f64(11).Append(r.LowerUncertainty)
		f64(12).Append(r.UpperUncertainty)
		f64(13).Append(r.WindowLength)
	}
	return b.NewRecord()
}

// roll closes the current file and hands it to the uploader.
func (p *Parquet) roll(ctx context.Context) error {
	if p.writer == nil {
		return nil
	}

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := p.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close file: %w", err)
	}

	path := p.path
	p.files = append(p.files, path)
	p.file, p.writer, p.path, p.rows = nil, nil, "", 0
	p.logger.Debug("closed parquet file", zap.String("path", path))

	if p.cfg.Uploader != nil {
		if err := p.cfg.Uploader.Upload(ctx, path); err != nil {
			return fmt.Errorf("failed to upload %s: %w", path, err)
		}
	}
	return nil
}

// Files returns the paths of closed files.
func (p *Parquet) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}

// RowsWritten returns total rows written.
func (p *Parquet) RowsWritten() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalRow
}

// Close closes the current file.
func (p *Parquet) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.roll(context.Background())
}

// mapCompression maps compression string to Arrow compression codec.
func mapCompression(name string) compress.Compression {
	switch name {
	case "snappy":
		return compress.Codecs.Snappy
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "lz4":
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Uncompressed
	}
}
