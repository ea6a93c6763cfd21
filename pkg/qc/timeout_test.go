package qc

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTimeoutInjectorEmptyBuffer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	inj := NewTimeoutInjector(zap.New(core))

	if _, ok := inj.Tick(NewView("A", nil), at(100)); ok {
		t.Fatal("expected no timeout for an empty buffer")
	}
	if logs.FilterMessage("waveform buffer is empty").Len() != 1 {
		t.Errorf("expected empty buffer debug log")
	}
}

func TestTimeoutInjectorAnchorDoesNotDrift(t *testing.T) {
	inj := NewTimeoutInjector(nil)
	b := NewBuffer(0)
	if err := b.Push("A", record(t, 0, 10, 100)); err != nil {
		t.Fatal(err)
	}

	var first Parameter
	for i, now := range []float64{20, 30, 40, 55} {
		p, ok := inj.Tick(b.View(), at(now))
		if !ok {
			t.Fatalf("tick %d: no timeout", i)
		}
		if i == 0 {
			first = p
		}
		if !p.RecordStartTime.Equal(first.RecordStartTime) {
			t.Fatalf("tick %d: anchor drifted from %v to %v", i, first.RecordStartTime, p.RecordStartTime)
		}
		if !p.RecordEndTime.Equal(at(now)) {
			t.Errorf("tick %d: expected end %v, got %v", i, at(now), p.RecordEndTime)
		}
		if err := b.Push("A", p); err != nil {
			t.Fatal(err)
		}
	}

	if !first.RecordStartTime.Equal(at(10)) {
		t.Errorf("expected anchor at last record end, got %v", first.RecordStartTime)
	}
	if got := *b.Back().Value; got != 45 {
		t.Errorf("expected last timeout to span 45s, got %v", got)
	}
}

func TestTimeoutInjectorFollowsNewRecords(t *testing.T) {
	inj := NewTimeoutInjector(nil)
	b := NewBuffer(0)
	if err := b.Push("A", record(t, 0, 10, 100)); err != nil {
		t.Fatal(err)
	}
	p, _ := inj.Tick(b.View(), at(20))
	if err := b.Push("A", p); err != nil {
		t.Fatal(err)
	}

	if err := b.Push("A", record(t, 25, 30, 100)); err != nil {
		t.Fatal(err)
	}
	p, ok := inj.Tick(b.View(), at(40))
	if !ok {
		t.Fatal("expected timeout")
	}
	if !p.RecordStartTime.Equal(at(30)) {
		t.Errorf("expected anchor to move to 30, got %v", p.RecordStartTime)
	}
	if !inj.LastRecordEndTime().Equal(at(30)) {
		t.Errorf("unexpected anchor %v", inj.LastRecordEndTime())
	}
}

func TestTimeoutInjectorClampsClock(t *testing.T) {
	inj := NewTimeoutInjector(nil)
	v := view(record(t, 0, 10, 100))

	p, ok := inj.Tick(v, at(5))
	if !ok {
		t.Fatal("expected timeout")
	}
	if !p.RecordEndTime.Equal(p.RecordStartTime) || *p.Value != 0 {
		t.Errorf("expected zero-span timeout, got %v value %v", p.Window(), *p.Value)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("clamped timeout invalid: %v", err)
	}
}

func TestTimeoutInjectorWithoutRecords(t *testing.T) {
	inj := NewTimeoutInjector(nil)
	v := view(timeout(0, 10))

	p, ok := inj.Tick(v, at(10).Add(5*time.Second))
	if !ok {
		t.Fatal("expected timeout")
	}
	if !p.RecordStartTime.Equal(at(10)) {
		t.Errorf("expected anchor at newest marker end, got %v", p.RecordStartTime)
	}
}
