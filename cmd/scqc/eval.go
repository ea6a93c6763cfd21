package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seisqc/seisqc/pkg/export"
	"github.com/seisqc/seisqc/pkg/ingest"
	"github.com/seisqc/seisqc/pkg/qc"
	"github.com/seisqc/seisqc/pkg/sinks"
	"github.com/seisqc/seisqc/pkg/tui"
)

var (
	evalHorizon  time.Duration
	evalStep     time.Duration
	evalXLSX     string
	evalJSON     bool
	evalProgress bool
)

var evalCmd = &cobra.Command{
	Use:   "eval [input.jsonl]",
	Short: "Evaluate availability of a recorded feed",
	Long: `Replay a JSON lines feed through the QC engine and print the reports.

By default each stream is evaluated once, over the last ring buffer window
before its newest entry. With --step the feed is replayed in data time and
the engine ticks every step, as it would live; this needs time-ordered
input.

Examples:
  scqc eval records.jsonl
  scqc eval records.jsonl --horizon 1h --xlsx availability.xlsx
  scqc eval records.jsonl --step 5m --json > reports.jsonl
  cat records.jsonl | scqc eval -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().DurationVar(&evalHorizon, "horizon", 0, "Ring buffer length; overrides qc.ringBufferSize")
	evalCmd.Flags().DurationVar(&evalStep, "step", 0, "Tick every step of data time (0 = one final evaluation)")
	evalCmd.Flags().StringVar(&evalXLSX, "xlsx", "", "Also write reports to an Excel workbook")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "Print reports as JSON lines instead of a table")
	evalCmd.Flags().BoolVar(&evalProgress, "progress", true, "Show a progress bar while reading")
	rootCmd.AddCommand(evalCmd)
}

// collector is an in-memory sink.
type collector struct {
	mu      sync.Mutex
	reports []qc.Report
}

func (c *collector) add(ctx context.Context, reports []qc.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, reports...)
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	_, cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if evalHorizon > 0 {
		cfg.QC.RingBufferSize = evalHorizon.Seconds()
	}

	path := "-"
	if len(args) == 1 {
		path = args[0]
	}

	var opts []ingest.Option
	opts = append(opts, ingest.WithLogger(logger))
	if evalProgress && path != "-" {
		opts = append(opts, ingest.WithReaderWrapper(func(r io.Reader, size int64) io.Reader {
			return tui.ProgressReader(r, size, "reading")
		}))
	}
	source := ingest.NewJSONLSource(path, opts...)

	out := &collector{}
	metrics, _ := newMetrics(cfg.Metrics, logger)
	defer metrics.Close()

	engine, err := newEngine(cfg, sinks.Func(out.add), logger, metrics)
	if err != nil {
		return err
	}
	defer engine.Release()

	ctx := cmd.Context()
	feed := make(chan qc.Item, 1024)
	readErr := make(chan error, 1)
	go func() {
		defer close(feed)
		readErr <- source.Run(ctx, feed)
	}()

	started := time.Now()
	last, err := replay(ctx, engine, feed, evalStep)
	if err != nil {
		return err
	}
	if err := <-readErr; err != nil {
		return err
	}
	if !last.IsZero() {
		engine.Tick(ctx, last)
	}

	logger.Debug("evaluation finished",
		zap.Int64("entries", source.Lines()),
		zap.Int("reports", len(out.reports)),
	)

	if evalXLSX != "" {
		if err := export.WriteXLSX(evalXLSX, out.reports, nil); err != nil {
			return err
		}
	}

	if evalJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range out.reports {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	tui.RenderResults(os.Stdout, tui.Results(out.reports))
	tui.PrintSummary(os.Stdout, tui.Summary{
		Entries:  source.Lines(),
		Skipped:  source.Skipped(),
		Streams:  len(engine.Streams()),
		Reports:  len(out.reports),
		Duration: time.Since(started),
	})
	if evalXLSX != "" {
		fmt.Fprintf(os.Stdout, "  wrote %s\n\n", evalXLSX)
	}
	return nil
}

// replay feeds items into the engine. With a positive step the engine
// ticks at every step boundary crossed by the data. It returns the newest
// end time seen.
func replay(ctx context.Context, engine *qc.Engine, feed <-chan qc.Item, step time.Duration) (time.Time, error) {
	var last, next time.Time
	for item := range feed {
		end := item.Parameter.RecordEndTime
		if step > 0 {
			if next.IsZero() {
				next = end.Truncate(step).Add(step)
			}
			for !end.Before(next) {
				engine.Tick(ctx, next)
				next = next.Add(step)
			}
		}
		// Rejected entries are logged by the stream.
		_ = engine.Feed(ctx, item)
		if end.After(last) {
			last = end
		}
		if err := ctx.Err(); err != nil {
			return last, err
		}
	}
	return last, nil
}
