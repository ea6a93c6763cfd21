package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seisqc/seisqc/pkg/qc"
)

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Stream is the stream key reports are appended to
	Stream string

	// MaxLen caps the stream length approximately (0 = unbounded)
	MaxLen int64

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Stream:   "scqc:reports",
		MaxLen:   100000,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// Redis appends reports to a Redis stream with XADD, one entry per report.
type Redis struct {
	cfg    RedisConfig
	client redis.UniversalClient
}

// NewRedis connects to Redis and creates the sink.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisWithClient(client, cfg), nil
}

// NewRedisWithClient creates the sink on an existing client.
func NewRedisWithClient(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Redis{cfg: cfg, client: client}
}

// Name returns "redis".
func (r *Redis) Name() string { return "redis" }

// Send appends reports in one pipeline.
func (r *Redis) Send(ctx context.Context, reports []qc.Report) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	pipe := r.client.Pipeline()
	for _, rep := range reports {
		values, err := redisValues(rep)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.cfg.Stream,
			MaxLen: r.cfg.MaxLen,
			Approx: r.cfg.MaxLen > 0,
			Values: values,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append reports: %w", err)
	}
	return nil
}

func redisValues(rep qc.Report) (map[string]interface{}, error) {
	payload, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}
	return map[string]interface{}{
		"waveform":  rep.WaveformID.String(),
		"parameter": rep.Parameter,
		"value":     strconv.FormatFloat(rep.Value, 'g', -1, 64),
		"end":       rep.End.Format(time.RFC3339Nano),
		"report":    payload,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
