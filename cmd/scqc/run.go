package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seisqc/seisqc/pkg/config"
	"github.com/seisqc/seisqc/pkg/ingest"
	"github.com/seisqc/seisqc/pkg/lifecycle"
	"github.com/seisqc/seisqc/pkg/picker"
	"github.com/seisqc/seisqc/pkg/qc"
	"github.com/seisqc/seisqc/pkg/sinks"
	"github.com/seisqc/seisqc/pkg/telemetry"
	"github.com/seisqc/seisqc/pkg/watch"
)

var (
	runSource string
	runInput  string
	runListen string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the QC engine on a live feed",
	Long: `Run the QC engine on a feed of QC parameters and send reports to the
configured sinks until interrupted or the feed ends.

Examples:
  scqc run -i records.jsonl
  tail -f records.jsonl | scqc run -i -
  scqc run --source kafka -c scqc.yaml`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "", "Input source (jsonl, kafka); overrides ingest.source")
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "JSON lines input ('-' for stdin); overrides ingest.path")
	runCmd.Flags().StringVar(&runListen, "listen", "", "Metrics and health listen address; overrides metrics.listen")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	mgr, cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if runSource != "" {
		cfg.Ingest.Source = runSource
	}
	if runInput != "" {
		cfg.Ingest.Path = runInput
	}
	if runListen != "" {
		cfg.Metrics.Listen = runListen
	}

	// Picker options are checked at startup even though only the QC
	// ring buffer is used here.
	pc, err := picker.Parse(cfg.Picker)
	if err != nil {
		return err
	}
	if err := pc.Validate(); err != nil {
		return err
	}

	sigCtx, stop := lifecycle.SignalContext(cmd.Context())
	defer stop()

	shutdownTracing, err := telemetry.Setup(sigCtx, cfg.Telemetry, version)
	if err != nil {
		return err
	}

	sd := lifecycle.NewShutdownManager(lifecycle.ShutdownConfig{Timeout: 30 * time.Second, Logger: logger})

	fan, err := sinks.FromConfig(sigCtx, cfg.Sinks, logger)
	if err != nil {
		return err
	}
	sd.Register("sinks", fan)

	metrics, prom := newMetrics(cfg.Metrics, logger)
	sd.Register("metrics", metrics)

	engine, err := newEngine(cfg, fan, logger, metrics)
	if err != nil {
		sd.Shutdown(context.Background())
		return err
	}

	source, err := newSource(cfg.Ingest, logger)
	if err != nil {
		sd.Shutdown(context.Background())
		return err
	}
	if c, ok := source.(interface{ Close() error }); ok {
		sd.Register("source", closerFunc(c.Close))
	}

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	feed := make(chan qc.Item, 1024)

	g.Go(func() error {
		defer close(feed)
		return ignoreCanceled(source.Run(gctx, feed))
	})

	g.Go(func() error {
		// The feed ending stops the whole run.
		defer cancel()
		return ignoreCanceled(engine.Run(gctx, feed))
	})

	if configFile != "" {
		g.Go(func() error {
			return ignoreCanceled(watch.ReloadConfig(gctx, mgr, func(c *config.Config) {
				engine.SetHorizon(c.QC.Horizon())
			}, watch.WithLogger(logger)))
		})
	}

	if prom != nil && cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		mux.Handle("/healthz", sd.HealthHandler())
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	if err := sd.Shutdown(context.Background()); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	tracingCtx, cancelTracing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTracing()
	if err := shutdownTracing(tracingCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}
	return runErr
}

func newSource(cfg config.IngestConfig, logger *zap.Logger) (ingest.Source, error) {
	switch cfg.Source {
	case "", "jsonl":
		return ingest.NewJSONLSource(cfg.Path, ingest.WithLogger(logger)), nil
	case "kafka":
		return ingest.NewKafkaSource(ingest.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, ingest.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown ingest source %q", cfg.Source)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
