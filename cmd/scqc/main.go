// scqc - streaming waveform availability QC.
// Reads QC parameters from JSON lines or Kafka and reports availability,
// gaps and overlaps per stream.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seisqc/seisqc/pkg/config"
	defaultmetrics "github.com/seisqc/seisqc/pkg/defaults/metrics"
	"github.com/seisqc/seisqc/pkg/interfaces"
	"github.com/seisqc/seisqc/pkg/qc"
	"github.com/seisqc/seisqc/pkg/registry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scqc",
	Short: "scqc - streaming waveform availability QC",
	Long: `scqc evaluates waveform availability per stream over a sliding window and
reports availability percentage, gap count and overlap count.

Configuration is read from /etc/scqc/config.yaml, ~/.scqc/config.yaml,
./.scqc.yaml and --config, in that order, then from SCQC_* variables.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// setup loads the configuration and builds the logger.
func setup() (*config.Manager, *config.Config, *zap.Logger, error) {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithFile(configFile))
	}
	mgr := config.NewManager(opts...)
	if err := mgr.Load(); err != nil {
		return nil, nil, nil, err
	}
	cfg := mgr.Get()

	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Debug("configuration loaded", zap.Strings("files", mgr.GetPaths()))
	return mgr, cfg, logger, nil
}

// newMetrics builds the configured metrics backend. prom is non-nil for
// the prometheus backend.
func newMetrics(cfg config.MetricsConfig, logger *zap.Logger) (m interfaces.MetricsExporter, prom *defaultmetrics.PromMetrics) {
	switch cfg.Backend {
	case "prometheus":
		prom = defaultmetrics.NewPromMetrics()
		return prom, prom
	case "log":
		return defaultmetrics.NewLogMetrics(defaultmetrics.WithLogger(logger)), nil
	default:
		return defaultmetrics.NewNoopMetrics(), nil
	}
}

// newEngine wires the configured plugins, the emitter and the engine.
func newEngine(cfg *config.Config, sink qc.Sink, logger *zap.Logger, m interfaces.MetricsExporter, opts ...qc.EngineOption) (*qc.Engine, error) {
	factories, err := registry.Resolve(cfg.QC.Plugins)
	if err != nil {
		return nil, err
	}

	emitter := qc.NewEmitter(sink,
		qc.WithCreatorID(cfg.QC.CreatorID),
		qc.WithEmitterLogger(logger),
		qc.WithEmitterMetrics(m),
	)

	opts = append([]qc.EngineOption{
		qc.WithHorizon(cfg.QC.Horizon()),
		qc.WithTickInterval(cfg.QC.TickInterval),
		qc.WithEngineLogger(logger),
		qc.WithEngineMetrics(m),
	}, opts...)
	return qc.NewEngine(factories, emitter, opts...), nil
}
