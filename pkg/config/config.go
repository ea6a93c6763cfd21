// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/qc"
)

// Config holds all seisqc configuration.
type Config struct {
	Version int `yaml:"version"`

	QC QCConfig `yaml:"qc"`

	// Picker is parsed by package picker.
	Picker *yaml.Node `yaml:"picker,omitempty"`

	Ingest    IngestConfig    `yaml:"ingest"`
	Sinks     SinksConfig     `yaml:"sinks"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// QCConfig controls the QC engine.
type QCConfig struct {
	RingBufferSize float64       `yaml:"ringBufferSize"` // seconds
	TickInterval   time.Duration `yaml:"tickInterval"`
	CreatorID      string        `yaml:"creatorID"`
	Plugins        []string      `yaml:"plugins"`
}

// Horizon returns the retention horizon of stream buffers.
func (q QCConfig) Horizon() time.Duration {
	return time.Duration(q.RingBufferSize * float64(time.Second))
}

// IngestConfig selects the input feed.
type IngestConfig struct {
	Source string      `yaml:"source"` // jsonl | kafka
	Path   string      `yaml:"path"`   // "-" reads stdin
	Kafka  KafkaConfig `yaml:"kafka"`
}

// KafkaConfig is shared by the Kafka source and sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// SinksConfig enables report sinks. Several sinks may be active at once.
type SinksConfig struct {
	Log     LogSinkConfig     `yaml:"log"`
	Redis   RedisSinkConfig   `yaml:"redis"`
	DuckDB  DuckDBSinkConfig  `yaml:"duckdb"`
	Kafka   KafkaSinkConfig   `yaml:"kafka"`
	Parquet ParquetSinkConfig `yaml:"parquet"`
	Breaker BreakerConfig     `yaml:"breaker"`
}

// BreakerConfig guards the network sinks (redis, kafka). After MaxFailures
// consecutive failed batches a sink is skipped for Cooldown.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// LogSinkConfig writes reports to the log.
type LogSinkConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RedisSinkConfig appends reports to a Redis stream.
type RedisSinkConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// DuckDBSinkConfig inserts reports into a DuckDB table.
type DuckDBSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// KafkaSinkConfig publishes reports to a topic.
type KafkaSinkConfig struct {
	Enabled bool        `yaml:"enabled"`
	Kafka   KafkaConfig `yaml:",inline"`
}

// ParquetSinkConfig writes rolling Parquet files.
type ParquetSinkConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Dir         string   `yaml:"dir"`
	RollReports int      `yaml:"roll_reports"`
	Compression string   `yaml:"compression"` // snappy | zstd | gzip | none
	S3          S3Config `yaml:"s3"`
}

// S3Config uploads closed Parquet files.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend string `yaml:"backend"` // noop | log | prometheus
	Listen  string `yaml:"listen"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // json | console
	Development bool   `yaml:"development"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		QC: QCConfig{
			RingBufferSize: qc.DefaultRingBufferSize.Seconds(),
			TickInterval:   qc.DefaultTickInterval,
			CreatorID:      defaultCreatorID(),
			Plugins:        []string{qc.AvailabilityPluginName},
		},
		Ingest: IngestConfig{
			Source: "jsonl",
			Path:   "-",
			Kafka: KafkaConfig{
				Topic:   "qc.parameters",
				GroupID: "scqc",
			},
		},
		Sinks: SinksConfig{
			Log: LogSinkConfig{Enabled: true},
			Redis: RedisSinkConfig{
				Addr:   "localhost:6379",
				Stream: "scqc:reports",
				MaxLen: 100000,
			},
			DuckDB: DuckDBSinkConfig{
				Path: "scqc.duckdb",
			},
			Kafka: KafkaSinkConfig{
				Kafka: KafkaConfig{Topic: "qc.reports"},
			},
			Parquet: ParquetSinkConfig{
				Dir:         "reports",
				RollReports: 10000,
				Compression: "snappy",
			},
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Cooldown:    30 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Backend: "noop",
			Listen:  ":9464",
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultCreatorID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "scqc"
	}
	return "scqc@" + host
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	paths    []string // Paths that were loaded
	explicit string
	search   []string
	getenv   func(string) string
}

// Option configures a Manager.
type Option func(*Manager)

// WithFile adds an explicit config file loaded after the search paths.
// Unlike search path files it must exist.
func WithFile(path string) Option {
	return func(m *Manager) {
		m.explicit = path
	}
}

// WithSearchPaths replaces the default search paths.
func WithSearchPaths(paths ...string) Option {
	return func(m *Manager) {
		m.search = paths
	}
}

// WithEnv replaces the environment lookup.
func WithEnv(getenv func(string) string) Option {
	return func(m *Manager) {
		m.getenv = getenv
	}
}

// NewManager creates a new configuration manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		config: Default(),
		getenv: os.Getenv,
	}
	m.search = m.getConfigPaths()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := Default()
	var paths []string

	// Load from paths in order (later overrides earlier)
	for _, path := range m.search {
		if err := loadFile(cfg, path); err != nil {
			// Ignore missing files, fail on broken ones
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		paths = append(paths, path)
	}

	if m.explicit != "" {
		if err := loadFile(cfg, m.explicit); err != nil {
			if qcerrors.IsCode(err, qcerrors.CodeConfigParse) {
				return err
			}
			return qcerrors.ConfigParse(m.explicit, err)
		}
		paths = append(paths, m.explicit)
	}

	// Override with environment variables
	if err := loadEnv(cfg, m.getenv); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config = cfg
	m.paths = paths
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/scqc/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".scqc", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".scqc.yaml"))
	}

	return paths
}

// loadFile decodes a single config file on top of cfg. Keys present in
// the file override, absent keys keep their current value.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Decode(cfg, bytes.NewReader(data), path)
}

// Decode reads YAML from r on top of cfg. Unknown keys are errors.
func Decode(cfg *Config, r io.Reader, name string) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return qcerrors.ConfigParse(name, err)
	}
	return nil
}

// loadEnv loads configuration from environment variables.
func loadEnv(cfg *Config, getenv func(string) string) error {
	// SCQC_RING_BUFFER_SIZE
	if v := getenv("SCQC_RING_BUFFER_SIZE"); v != "" {
		size, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return qcerrors.ConfigParse("SCQC_RING_BUFFER_SIZE", err)
		}
		cfg.QC.RingBufferSize = size
	}

	// SCQC_TICK_INTERVAL
	if v := getenv("SCQC_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return qcerrors.ConfigParse("SCQC_TICK_INTERVAL", err)
		}
		cfg.QC.TickInterval = d
	}

	// SCQC_CREATOR_ID
	if v := getenv("SCQC_CREATOR_ID"); v != "" {
		cfg.QC.CreatorID = v
	}

	// SCQC_LOG_LEVEL
	if v := getenv("SCQC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	invalid := func(key string, value interface{}, msg string) error {
		return qcerrors.New(qcerrors.CodeConfigInvalid, msg).
			WithContext("key", key).
			WithContext("value", value)
	}

	if c.QC.RingBufferSize <= 0 {
		return invalid("qc.ringBufferSize", c.QC.RingBufferSize, "ring buffer size must be positive")
	}
	if c.QC.TickInterval <= 0 {
		return invalid("qc.tickInterval", c.QC.TickInterval, "tick interval must be positive")
	}
	if len(c.QC.Plugins) == 0 {
		return invalid("qc.plugins", c.QC.Plugins, "at least one plugin is required")
	}
	switch c.Ingest.Source {
	case "jsonl", "kafka":
	default:
		return invalid("ingest.source", c.Ingest.Source, "unknown ingest source")
	}
	switch c.Metrics.Backend {
	case "noop", "log", "prometheus":
	default:
		return invalid("metrics.backend", c.Metrics.Backend, "unknown metrics backend")
	}
	if c.Ingest.Source == "kafka" && len(c.Ingest.Kafka.Brokers) == 0 {
		return invalid("ingest.kafka.brokers", c.Ingest.Kafka.Brokers, "kafka source needs brokers")
	}
	if c.Ingest.Source == "kafka" && c.Ingest.Kafka.GroupID == "" {
		return invalid("ingest.kafka.group_id", "", "kafka source needs a consumer group to commit offsets")
	}
	if c.Sinks.Parquet.S3.Enabled && c.Sinks.Parquet.S3.Bucket == "" {
		return invalid("sinks.parquet.s3.bucket", "", "s3 upload needs a bucket")
	}
	return nil
}

// EnsureDirs creates the directories of enabled file based sinks.
func (c *Config) EnsureDirs() error {
	var dirs []string
	if c.Sinks.Parquet.Enabled {
		dirs = append(dirs, c.Sinks.Parquet.Dir)
	}
	if c.Sinks.DuckDB.Enabled {
		dirs = append(dirs, filepath.Dir(c.Sinks.DuckDB.Path))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// WatchPath returns the file whose changes should trigger a reload: the
// explicit file if given, otherwise the last loaded search path.
func (m *Manager) WatchPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.explicit != "" {
		return m.explicit
	}
	if len(m.paths) > 0 {
		return m.paths[len(m.paths)-1]
	}
	return ""
}

// Save writes the current config to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Write encodes the current config as YAML to w.
func (m *Manager) Write(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m.config); err != nil {
		return err
	}
	return enc.Close()
}
