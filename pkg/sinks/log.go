package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/seisqc/seisqc/pkg/qc"
)

// Log writes each report as a structured log line at info level.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log sink.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("report")}
}

// Name returns "log".
func (l *Log) Name() string { return "log" }

// Send logs reports.
func (l *Log) Send(ctx context.Context, reports []qc.Report) error {
	for _, r := range reports {
		l.logger.Info("waveform quality",
			zap.String("waveform", r.WaveformID.String()),
			zap.String("parameter", r.Parameter),
			zap.Float64("value", r.Value),
			zap.Time("start", r.Start),
			zap.Time("end", r.End),
			zap.Float64("window_length", r.WindowLength),
			zap.String("creator", r.CreatorID),
		)
	}
	return nil
}

// Close syncs the logger.
func (l *Log) Close() error {
	// Sync fails on stderr/stdout on some platforms; nothing to recover.
	_ = l.logger.Sync()
	return nil
}
