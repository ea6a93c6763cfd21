package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/seisqc/seisqc/pkg/qc"
)

// MessageReader is the subset of *kafka.Reader used by KafkaSource.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a consumer group reader.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaSource consumes wire entries from a topic. The message key is the
// stream ID when the payload carries none. Offsets are committed once the
// item is handed to the engine; undecodable messages are committed and
// skipped.
type KafkaSource struct {
	reader MessageReader
	opts   options
}

// NewKafkaSource creates a source reading cfg.Topic as group cfg.GroupID.
func NewKafkaSource(cfg KafkaConfig, opts ...Option) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("no kafka topic configured")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("no kafka consumer group configured")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewKafkaSourceWithReader(r, opts...), nil
}

// NewKafkaSourceWithReader creates a source on an existing reader.
func NewKafkaSourceWithReader(r MessageReader, opts ...Option) *KafkaSource {
	return &KafkaSource{reader: r, opts: buildOptions(opts)}
}

// Run consumes until ctx is done or the reader fails.
func (k *KafkaSource) Run(ctx context.Context, out chan<- qc.Item) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		item, err := Decode(msg.Value, string(msg.Key))
		if err != nil {
			k.opts.logger.Warn("skipping message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		} else {
			select {
			case out <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

// Close closes the reader.
func (k *KafkaSource) Close() error {
	return k.reader.Close()
}
