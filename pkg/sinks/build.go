package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/seisqc/seisqc/pkg/config"
	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/resilience"
)

// FromConfig builds a fanout over the enabled sinks. Sinks already opened
// are closed again if a later one fails.
func FromConfig(ctx context.Context, cfg config.SinksConfig, logger *zap.Logger) (*Fanout, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fan := NewFanout()
	fail := func(name string, err error) (*Fanout, error) {
		fan.Close()
		return nil, qcerrors.Wrap(err, qcerrors.CodeConfigInvalid, "cannot open sink").WithContext("sink", name)
	}
	guard := func(s Sink) Sink {
		if cfg.Breaker.MaxFailures <= 0 {
			return s
		}
		cb := resilience.NewCircuitBreaker().
			WithMaxFailures(cfg.Breaker.MaxFailures).
			WithCooldown(cfg.Breaker.Cooldown)
		return NewGuarded(s, cb, logger)
	}

	if cfg.Log.Enabled {
		fan.Add(NewLog(logger))
	}

	if cfg.Redis.Enabled {
		rc := DefaultRedisConfig(cfg.Redis.Addr)
		rc.Password = cfg.Redis.Password
		rc.Database = cfg.Redis.DB
		if cfg.Redis.Stream != "" {
			rc.Stream = cfg.Redis.Stream
		}
		rc.MaxLen = cfg.Redis.MaxLen

		s, err := NewRedis(ctx, rc)
		if err != nil {
			return fail("redis", err)
		}
		fan.Add(guard(s))
	}

	if cfg.DuckDB.Enabled {
		s, err := NewDuckDB(cfg.DuckDB.Path)
		if err != nil {
			return fail("duckdb", err)
		}
		fan.Add(s)
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Kafka.Brokers) == 0 {
			return fail("kafka", qcerrors.New(qcerrors.CodeConfigInvalid, "no brokers configured"))
		}
		fan.Add(guard(NewKafka(cfg.Kafka.Kafka.Brokers, cfg.Kafka.Kafka.Topic)))
	}

	if cfg.Parquet.Enabled {
		pc := ParquetConfig{
			Dir:         cfg.Parquet.Dir,
			RollReports: cfg.Parquet.RollReports,
			Compression: cfg.Parquet.Compression,
		}
		if s3c := cfg.Parquet.S3; s3c.Enabled {
			up, err := NewS3Uploader(ctx, S3Config{
				Region:          s3c.Region,
				Bucket:          s3c.Bucket,
				Prefix:          s3c.Prefix,
				Endpoint:        s3c.Endpoint,
				AccessKeyID:     s3c.AccessKeyID,
				SecretAccessKey: s3c.SecretAccessKey,
			}, logger)
			if err != nil {
				return fail("s3", err)
			}
			pc.Uploader = up
		}

		s, err := NewParquet(pc, logger)
		if err != nil {
			return fail("parquet", err)
		}
		fan.Add(s)
	}

	return fan, nil
}
