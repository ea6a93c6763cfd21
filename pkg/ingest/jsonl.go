package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/seisqc/seisqc/pkg/qc"
)

// Source produces items until its input is exhausted or ctx is done.
// Sources do not close out.
type Source interface {
	Run(ctx context.Context, out chan<- qc.Item) error
}

// Option configures a source.
type Option func(*options)

type options struct {
	logger *zap.Logger
	wrap   func(r io.Reader, size int64) io.Reader
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithReaderWrapper wraps the input reader, e.g. with a progress bar.
// size is -1 when unknown.
func WithReaderWrapper(wrap func(r io.Reader, size int64) io.Reader) Option {
	return func(o *options) {
		o.wrap = wrap
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// JSONLSource reads one wire entry per line. Blank lines are ignored,
// malformed or invalid lines are logged and skipped.
type JSONLSource struct {
	path string
	open func() (io.ReadCloser, int64, error)
	opts options

	lines   atomic.Int64
	skipped atomic.Int64
}

// NewJSONLSource reads path, or stdin when path is "-" or empty.
func NewJSONLSource(path string, opts ...Option) *JSONLSource {
	s := &JSONLSource{path: path, opts: buildOptions(opts)}
	s.open = func() (io.ReadCloser, int64, error) {
		if path == "" || path == "-" {
			return io.NopCloser(os.Stdin), -1, nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		size := int64(-1)
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
		return f, size, nil
	}
	return s
}

// NewJSONLReader reads from r.
func NewJSONLReader(r io.Reader, name string, opts ...Option) *JSONLSource {
	s := &JSONLSource{path: name, opts: buildOptions(opts)}
	s.open = func() (io.ReadCloser, int64, error) {
		return io.NopCloser(r), -1, nil
	}
	return s
}

// Lines returns the number of non-blank lines read.
func (s *JSONLSource) Lines() int64 { return s.lines.Load() }

// Skipped returns the number of lines that did not decode.
func (s *JSONLSource) Skipped() int64 { return s.skipped.Load() }

// Run reads the input and sends every decoded item to out.
func (s *JSONLSource) Run(ctx context.Context, out chan<- qc.Item) error {
	rc, size, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if s.opts.wrap != nil {
		r = s.opts.wrap(r, size)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		s.lines.Add(1)

		item, err := Decode(line, "")
		if err != nil {
			s.skipped.Add(1)
			s.opts.logger.Warn("skipping entry",
				zap.String("source", s.path),
				zap.Int("line", lineNum),
				zap.Error(err),
			)
			continue
		}

		select {
		case out <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	s.opts.logger.Debug("source exhausted",
		zap.String("source", s.path),
		zap.Int64("lines", s.Lines()),
		zap.Int64("skipped", s.Skipped()),
	)
	return nil
}
