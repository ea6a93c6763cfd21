package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/seisqc/seisqc/pkg/qc"
)

// MessageWriter is the subset of *kafka.Writer used by the Kafka sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes reports as JSON messages keyed by waveform ID, so all
// reports of a stream land on the same partition.
type Kafka struct {
	writer MessageWriter
	topic  string
}

// NewKafka creates a sink writing to topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaWithWriter(w, topic)
}

// NewKafkaWithWriter creates a sink on an existing writer.
func NewKafkaWithWriter(w MessageWriter, topic string) *Kafka {
	return &Kafka{writer: w, topic: topic}
}

// Name returns "kafka".
func (k *Kafka) Name() string { return "kafka" }

// Send publishes reports in one batch.
func (k *Kafka) Send(ctx context.Context, reports []qc.Report) error {
	msgs := make([]kafka.Message, 0, len(reports))
	for _, r := range reports {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to serialize report: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.WaveformID.String()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "parameter", Value: []byte(r.Parameter)},
			},
			Time: r.Created,
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
