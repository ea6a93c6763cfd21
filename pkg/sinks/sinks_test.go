package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/seisqc/seisqc/pkg/config"
	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/qc"
	"github.com/seisqc/seisqc/pkg/resilience"
)

func testReports(n int) []qc.Report {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	reports := make([]qc.Report, 0, n)
	for i := 0; i < n; i++ {
		reports = append(reports, qc.Report{
			WaveformID:   qc.ParseStreamID("GE.APE..BHZ"),
			CreatorID:    "test",
			Created:      start.Add(time.Hour),
			Start:        start,
			End:          start.Add(5 * time.Minute),
			Type:         qc.ReportType,
			Parameter:    qc.AvailabilityParameters[i%3],
			Value:        float64(i),
			WindowLength: 300,
		})
	}
	return reports
}

type memSink struct {
	mu      sync.Mutex
	name    string
	got     []qc.Report
	err     error
	closed  bool
	closeFn func() error
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Send(ctx context.Context, reports []qc.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, reports...)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}

func TestFanoutDeliversToAll(t *testing.T) {
	failing := &memSink{name: "broken", err: errors.New("down")}
	a := &memSink{name: "a"}
	b := &memSink{name: "b"}
	fan := NewFanout(a, failing, b)

	err := fan.Send(context.Background(), testReports(3))
	if !qcerrors.IsCode(err, qcerrors.CodeSinkFailure) {
		t.Fatalf("expected sink failure, got %v", err)
	}
	if len(a.got) != 3 || len(b.got) != 3 {
		t.Errorf("healthy sinks missed reports: a=%d b=%d", len(a.got), len(b.got))
	}

	a.got[0].Value = 42
	if b.got[0].Value == 42 {
		t.Error("sinks share the report slice")
	}

	if err := fan.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed || !failing.closed {
		t.Error("not all sinks closed")
	}
}

func TestFanoutCloseCollectsErrors(t *testing.T) {
	fan := NewFanout(
		&memSink{name: "a", closeFn: func() error { return errors.New("a") }},
		&memSink{name: "b", closeFn: func() error { return errors.New("b") }},
	)
	err := fan.Close()
	var multi *qcerrors.MultiError
	if !errors.As(err, &multi) || len(multi.Errors) != 2 {
		t.Fatalf("expected two close errors, got %v", err)
	}
}

func TestGuardedSkipsFailingSink(t *testing.T) {
	down := &memSink{name: "redis", err: errors.New("connection refused")}
	core, logs := observer.New(zapcore.InfoLevel)
	g := NewGuarded(down, resilience.NewCircuitBreaker().WithMaxFailures(2).WithCooldown(time.Hour), zap.New(core))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := g.Send(ctx, testReports(3)); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("send %d: expected sink error, got %v", i, err)
		}
	}
	if g.State() != resilience.CircuitOpen {
		t.Fatalf("expected open circuit, got %s", g.State())
	}

	down.err = nil
	if err := g.Send(ctx, testReports(3)); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if len(down.got) != 0 {
		t.Error("open circuit reached the sink")
	}
	if g.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", g.Dropped())
	}
	if logs.FilterMessage("sink disabled after consecutive failures").Len() != 1 {
		t.Error("trip not logged")
	}
}

func TestChannelSink(t *testing.T) {
	ch := make(Channel, 1)
	if err := ch.Send(context.Background(), testReports(3)); err != nil {
		t.Fatal(err)
	}
	if got := <-ch; len(got) != 3 {
		t.Errorf("expected 3 reports, got %d", len(got))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	full := make(Channel)
	if err := full.Send(ctx, testReports(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestFuncSink(t *testing.T) {
	var n int
	f := Func(func(ctx context.Context, reports []qc.Report) error {
		n += len(reports)
		return nil
	})
	if err := f.Send(context.Background(), testReports(2)); err != nil {
		t.Fatal(err)
	}
	if n != 2 || f.Name() != "func" {
		t.Errorf("unexpected func sink state n=%d", n)
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLog(zap.New(core))
	if err := l.Send(context.Background(), testReports(3)); err != nil {
		t.Fatal(err)
	}
	if logs.Len() != 3 {
		t.Fatalf("expected 3 log lines, got %d", logs.Len())
	}
	fields := logs.All()[1].ContextMap()
	if fields["parameter"] != "gaps count" || fields["waveform"] != "GE.APE..BHZ" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestParquetSinkRolls(t *testing.T) {
	dir := t.TempDir()
	p, err := NewParquet(ParquetConfig{Dir: dir, RollReports: 5, Compression: "snappy"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.Send(ctx, testReports(3)); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	files := p.Files()
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	if p.RowsWritten() != 9 {
		t.Errorf("expected 9 rows, got %d", p.RowsWritten())
	}

	var total int64
	for _, path := range files {
		total += countParquetRows(t, path)
	}
	if total != 9 {
		t.Errorf("expected 9 rows on disk, got %d", total)
	}

	if err := p.Send(ctx, testReports(1)); err == nil {
		t.Error("expected send after close to fail")
	}
}

func countParquetRows(t *testing.T, path string) int64 {
	t.Helper()
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer tbl.Release()

	if tbl.Schema().Field(9).Name != "parameter" {
		t.Errorf("unexpected schema %v", tbl.Schema())
	}
	return tbl.NumRows()
}

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	body []byte
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, *in.Key)
	f.body = data
	return &s3.PutObjectOutput{}, nil
}

func TestParquetUploadsToS3(t *testing.T) {
	dir := t.TempDir()
	putter := &fakePutter{}
	up := NewS3UploaderWithClient(putter, S3Config{Bucket: "qc", Prefix: "reports/2024", RemoveAfterUpload: true}, nil)

	p, err := NewParquet(ParquetConfig{Dir: dir, RollReports: 3, Uploader: up}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Send(context.Background(), testReports(3)); err != nil {
		t.Fatal(err)
	}

	if len(putter.keys) != 1 {
		t.Fatalf("expected one upload, got %v", putter.keys)
	}
	files := p.Files()
	if want := "reports/2024/" + filepath.Base(files[0]); putter.keys[0] != want {
		t.Errorf("expected key %q, got %q", want, putter.keys[0])
	}
	if len(putter.body) == 0 {
		t.Error("empty upload")
	}
	if _, err := os.Stat(files[0]); !os.IsNotExist(err) {
		t.Error("uploaded file not removed")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaWithWriter(w, "qc.reports")
	if err := k.Send(context.Background(), testReports(3)); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "GE.APE..BHZ" {
		t.Errorf("unexpected key %q", w.msgs[0].Key)
	}

	var r qc.Report
	if err := json.Unmarshal(w.msgs[2].Value, &r); err != nil {
		t.Fatal(err)
	}
	if r.Parameter != "overlaps count" || r.Value != 2 {
		t.Errorf("unexpected payload %+v", r)
	}
	if err := k.Close(); err != nil || !w.closed {
		t.Error("writer not closed")
	}
}

func TestRedisValues(t *testing.T) {
	values, err := redisValues(testReports(1)[0])
	if err != nil {
		t.Fatal(err)
	}
	if values["waveform"] != "GE.APE..BHZ" || values["parameter"] != "availability" || values["value"] != "0" {
		t.Errorf("unexpected values %v", values)
	}
	if _, ok := values["report"].([]byte); !ok {
		t.Error("missing serialized report")
	}
}

func TestDuckDBSink(t *testing.T) {
	db, err := NewDuckDB("")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Send(ctx, testReports(6)); err != nil {
		t.Fatal(err)
	}

	n, err := db.Count(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("expected 6 rows, got %d", n)
	}
	n, err = db.Count(ctx, "availability")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 availability rows, got %d", n)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Sinks
	cfg.Parquet.Enabled = true
	cfg.Parquet.Dir = t.TempDir()

	fan, err := FromConfig(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer fan.Close()

	if fan.Len() != 2 {
		t.Errorf("expected log and parquet sinks, got %d", fan.Len())
	}

	cfg.Kafka.Enabled = true
	if _, err := FromConfig(context.Background(), cfg, nil); !qcerrors.IsCode(err, qcerrors.CodeConfigInvalid) {
		t.Errorf("expected config error for kafka without brokers, got %v", err)
	}
}
