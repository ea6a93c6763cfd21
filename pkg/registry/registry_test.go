package registry

import (
	"testing"
	"time"

	"go.uber.org/zap"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/qc"
)

func TestDefaultRegistryHasAvailability(t *testing.T) {
	f, err := Lookup(qc.AvailabilityPluginName)
	if err != nil {
		t.Fatal(err)
	}
	p := f("GE.APE..BHZ", zap.NewNop())
	if p.Name != qc.AvailabilityPluginName {
		t.Errorf("unexpected plugin %q", p.Name)
	}
	if len(p.ParameterNames) != 3 || p.ParameterNames[0] != "availability" {
		t.Errorf("unexpected parameters %v", p.ParameterNames)
	}
}

func TestLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("QcLatency")
	if !qcerrors.IsCode(err, qcerrors.CodeUnknownPlugin) {
		t.Fatalf("expected unknown plugin error, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("b", qc.NewAvailabilityPlugin)
	r.Register("a", qc.NewAvailabilityPlugin)

	if names := r.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names %v", names)
	}

	factories, err := r.Resolve([]string{"a", "b"})
	if err != nil || len(factories) != 2 {
		t.Fatalf("resolve: %v (%d)", err, len(factories))
	}

	if _, err := r.Resolve([]string{"a", "missing"}); err == nil {
		t.Error("expected resolve to fail on unknown name")
	}
}

func TestPluginsHaveIndependentState(t *testing.T) {
	f, err := Lookup(qc.AvailabilityPluginName)
	if err != nil {
		t.Fatal(err)
	}
	a := f("A", nil)
	b := f("B", nil)

	ra, _ := qc.NewRecord(mustTime(0), mustTime(10), 100)
	va := qc.NewView("A", []qc.Parameter{ra})
	if _, ok := a.Timeout(va, mustTime(20)); !ok {
		t.Fatal("expected timeout for A")
	}
	if _, ok := b.Timeout(qc.NewView("B", nil), mustTime(20)); ok {
		t.Error("B must not see A's anchor")
	}
}

func mustTime(s int64) time.Time {
	return time.Unix(1_700_000_000+s, 0).UTC()
}
