// Package ingest feeds QC parameters into the engine from JSON lines files
// and Kafka topics.
package ingest

import (
	"encoding/json"
	"time"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/qc"
)

// Entry is the wire form of one QC parameter. A sampling frequency of -1
// marks a timeout entry.
type Entry struct {
	Stream string    `json:"stream"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Fs     float64   `json:"fs"`
	Value  *float64  `json:"value,omitempty"`
}

// Decode parses one wire entry. fallbackStream is used when the payload
// carries no stream ID, e.g. a Kafka message key.
func Decode(data []byte, fallbackStream string) (qc.Item, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return qc.Item{}, qcerrors.Wrap(err, qcerrors.CodeDecodeFailed, "malformed entry")
	}
	if e.Stream == "" {
		e.Stream = fallbackStream
	}
	if e.Stream == "" {
		return qc.Item{}, qcerrors.New(qcerrors.CodeDecodeFailed, "entry has no stream id")
	}

	p, err := qc.FromWire(e.Start, e.End, e.Fs, e.Value)
	if err != nil {
		return qc.Item{}, err
	}
	return qc.Item{StreamID: e.Stream, Parameter: p}, nil
}

// Encode renders an item in wire form.
func Encode(item qc.Item) ([]byte, error) {
	p := item.Parameter
	return json.Marshal(Entry{
		Stream: item.StreamID,
		Start:  p.RecordStartTime,
		End:    p.RecordEndTime,
		Fs:     p.WireSamplingFrequency(),
		Value:  p.Value,
	})
}
