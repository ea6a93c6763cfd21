package qc

import (
	"math"
	"testing"
	"time"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
)

func TestBufferRetention(t *testing.T) {
	b := NewBuffer(10 * time.Second)
	for i := 0; i < 20; i++ {
		if err := b.Push("A", record(t, float64(i), float64(i+1), 100)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	if b.Len() != 10 {
		t.Fatalf("expected 10 entries, got %d", b.Len())
	}
	if !b.StartTime().Equal(at(10)) {
		t.Errorf("expected start at 10, got %v", b.StartTime())
	}
	if !b.EndTime().Equal(at(20)) {
		t.Errorf("expected end at 20, got %v", b.EndTime())
	}
	if b.Length() != 10 {
		t.Errorf("expected length 10, got %v", b.Length())
	}
}

func TestBufferKeepsNewestEntry(t *testing.T) {
	b := NewBuffer(time.Second)
	if err := b.Push("A", record(t, 0, 1, 100)); err != nil {
		t.Fatal(err)
	}
	if err := b.Push("A", record(t, 100, 200, 100)); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", b.Len())
	}
	if !b.Front().RecordStartTime.Equal(at(100)) {
		t.Errorf("expected the newest entry to survive, got %v", b.Front().Window())
	}
}

func TestBufferSetHorizon(t *testing.T) {
	b := NewBuffer(0)
	for i := 0; i < 5; i++ {
		if err := b.Push("A", record(t, float64(i), float64(i+1), 100)); err != nil {
			t.Fatal(err)
		}
	}
	if b.Len() != 5 {
		t.Fatalf("expected unbounded buffer, got %d entries", b.Len())
	}

	b.SetHorizon(2 * time.Second)
	if b.Len() != 2 {
		t.Errorf("expected 2 entries after shrinking horizon, got %d", b.Len())
	}
	if b.Horizon() != 2*time.Second {
		t.Errorf("unexpected horizon %v", b.Horizon())
	}
}

func TestBufferStreamBinding(t *testing.T) {
	b := NewBuffer(DefaultRingBufferSize)
	if err := b.Push("GE.APE..BHZ", record(t, 0, 1, 100)); err != nil {
		t.Fatal(err)
	}

	err := b.Push("GE.APE..BHN", record(t, 1, 2, 100))
	if !qcerrors.IsCode(err, qcerrors.CodeStreamMismatch) {
		t.Fatalf("expected stream mismatch, got %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("rejected entry was stored")
	}

	b.Reset()
	if !b.Empty() || b.StreamID() != "" {
		t.Errorf("reset left state behind")
	}
	if err := b.Push("GE.APE..BHN", record(t, 1, 2, 100)); err != nil {
		t.Errorf("push after reset: %v", err)
	}
}

func TestBufferRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		p    Parameter
	}{
		{"end before start", Parameter{Kind: KindRecord, RecordStartTime: at(2), RecordEndTime: at(1), RecordSamplingFrequency: 100}},
		{"zero length record", Parameter{Kind: KindRecord, RecordStartTime: at(1), RecordEndTime: at(1), RecordSamplingFrequency: 100}},
		{"zero rate", Parameter{Kind: KindRecord, RecordStartTime: at(0), RecordEndTime: at(1)}},
		{"negative rate", Parameter{Kind: KindRecord, RecordStartTime: at(0), RecordEndTime: at(1), RecordSamplingFrequency: -1}},
		{"nan rate", Parameter{Kind: KindRecord, RecordStartTime: at(0), RecordEndTime: at(1), RecordSamplingFrequency: math.NaN()}},
		{"missing times", Parameter{Kind: KindRecord, RecordSamplingFrequency: 100}},
		{"timeout ending before start", Parameter{Kind: KindTimeout, RecordStartTime: at(2), RecordEndTime: at(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(DefaultRingBufferSize)
			err := b.Push("A", tt.p)
			if !qcerrors.IsCode(err, qcerrors.CodeInvalidEntry) {
				t.Fatalf("expected invalid entry, got %v", err)
			}
			if !b.Empty() {
				t.Errorf("invalid entry was stored")
			}
		})
	}
}

func TestBufferAcceptsZeroSpanTimeout(t *testing.T) {
	b := NewBuffer(DefaultRingBufferSize)
	if err := b.Push("A", timeout(5, 5)); err != nil {
		t.Fatalf("expected zero-span timeout to be accepted: %v", err)
	}
}

func TestViewIteration(t *testing.T) {
	b := NewBuffer(DefaultRingBufferSize)
	for i := 0; i < 4; i++ {
		if err := b.Push("A", record(t, float64(i), float64(i+1), 100)); err != nil {
			t.Fatal(err)
		}
	}

	v := b.View()
	if v.StreamID() != "A" || v.Len() != 4 {
		t.Fatalf("unexpected view %q len %d", v.StreamID(), v.Len())
	}

	var starts []time.Time
	for p := range v.All() {
		starts = append(starts, p.RecordStartTime)
		if len(starts) == 2 {
			break
		}
	}
	if len(starts) != 2 || !starts[1].Equal(at(1)) {
		t.Errorf("unexpected iteration %v", starts)
	}
	if !v.At(3).RecordEndTime.Equal(v.EndTime()) {
		t.Errorf("At(3) does not match back")
	}
}

func TestEmptyView(t *testing.T) {
	var v View
	if !v.Empty() || !v.StartTime().IsZero() || !v.EndTime().IsZero() || v.Length() != 0 {
		t.Errorf("unexpected empty view state")
	}
}

func TestFromWire(t *testing.T) {
	value := 30.0
	p, err := FromWire(at(10), at(40), TimeoutSamplingFrequency, &value)
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsTimeout() || p.RecordSamplingFrequency != 0 {
		t.Errorf("expected timeout entry, got %+v", p)
	}
	if p.WireSamplingFrequency() != -1 {
		t.Errorf("expected wire rate -1, got %v", p.WireSamplingFrequency())
	}
	value = 0
	if *p.Value != 30 {
		t.Errorf("value aliases caller memory")
	}

	p, err = FromWire(at(0), at(1), 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindRecord || p.WireSamplingFrequency() != 100 || p.Value != nil {
		t.Errorf("unexpected record %+v", p)
	}

	if _, err := FromWire(at(0), at(1), 0, nil); !qcerrors.IsCode(err, qcerrors.CodeInvalidEntry) {
		t.Errorf("expected invalid entry for zero rate, got %v", err)
	}
}

func TestNewTimeoutValue(t *testing.T) {
	p := timeout(10, 40)
	if p.Value == nil || *p.Value != 30 {
		t.Errorf("expected span value 30, got %v", p.Value)
	}
	if p.Kind.String() != "timeout" {
		t.Errorf("unexpected kind %s", p.Kind)
	}
}
