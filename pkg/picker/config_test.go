package picker

import (
	"bytes"
	"strings"
	"testing"
	"time"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
)

func TestParseEmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Filter != def.Filter || cfg.RingBufferSize != 300 || cfg.PhaseHint != "P" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.KillPendingSPickers || !cfg.CalculateAmplitudes {
		t.Error("boolean defaults not applied")
	}
	if cfg.RingBuffer() != 5*time.Minute {
		t.Errorf("unexpected ring buffer %v", cfg.RingBuffer())
	}
}

func TestParseNestedAndDotted(t *testing.T) {
	doc := `
phaseHint: S
ringBufferSize: 600
thresholds:
  triggerOn: 4
  deadTime: 20.5
thresholds.triggerOff: 2
connection:
  amplitudeGroup: AMPL
comment.ID: origin
amplitudes: [mb, MLv, mb]
amplitudes.enableUpdate: [MLv]
killPendingSPickers: false
`
	cfg, err := ParseBytes([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.PhaseHint != "S" || cfg.RingBufferSize != 600 {
		t.Errorf("top level options not applied: %+v", cfg)
	}
	if cfg.TriggerOn != 4 || cfg.DeadTime != 20.5 || cfg.TriggerOff != 2 {
		t.Errorf("thresholds not applied: on=%v dead=%v off=%v", cfg.TriggerOn, cfg.DeadTime, cfg.TriggerOff)
	}
	if cfg.AmplitudeGroup != "AMPL" || cfg.CommentID != "origin" {
		t.Errorf("nested strings not applied: %q %q", cfg.AmplitudeGroup, cfg.CommentID)
	}
	if strings.Join(cfg.Amplitudes, ",") != "MLv,mb" {
		t.Errorf("expected sorted unique amplitudes, got %v", cfg.Amplitudes)
	}
	if strings.Join(cfg.AmplitudeUpdates, ",") != "MLv" {
		t.Errorf("unexpected update list %v", cfg.AmplitudeUpdates)
	}
	if cfg.KillPendingSPickers {
		t.Error("killPendingSPickers not overridden")
	}
	// Untouched options keep defaults.
	if cfg.MaxGapLength != 4.5 || cfg.TimeCorrection != -0.8 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestParseNestedAmplitudes(t *testing.T) {
	cfg, err := ParseBytes([]byte("amplitudes:\n  enableUpdate: [MLv, mB]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(cfg.AmplitudeUpdates, ",") != "MLv,mB" {
		t.Errorf("unexpected update list %v", cfg.AmplitudeUpdates)
	}
	if strings.Join(cfg.Amplitudes, ",") != strings.Join(Default().Amplitudes, ",") {
		t.Errorf("amplitude list should keep its default, got %v", cfg.Amplitudes)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		key  string
	}{
		{"unknown option", "bogus: 1\n", "bogus"},
		{"unknown nested option", "thresholds:\n  triggerUp: 3\n", "thresholds.triggerUp"},
		{"number type mismatch", "leadTime: soon\n", "leadTime"},
		{"bool type mismatch", "playback: 3\n", "playback"},
		{"list type mismatch", "amplitudes: mb\n", "amplitudes"},
		{"unknown amplitudes child", "amplitudes: {a: 1}\n", "amplitudes.a"},
		{"nested and dotted twice", "amplitudes.enableUpdate: [MLv]\namplitudes:\n  enableUpdate: [mb]\n", "amplitudes.enableUpdate"},
		{"mapping for scalar", "filter:\n  a: b\n", "filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tt.doc))
			if !qcerrors.IsCode(err, qcerrors.CodeConfigParse) {
				t.Fatalf("expected config parse error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error does not name %q: %v", tt.key, err)
			}
		})
	}
}

func TestParseRejectsNonMapping(t *testing.T) {
	if _, err := ParseBytes([]byte("- a\n- b\n")); err == nil {
		t.Error("expected error for a sequence document")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()
	cfg.SendDetections = true
	cfg.ApplyFlags(Flags{EP: true, DumpRecords: true})

	if !cfg.Offline || !cfg.DumpRecords || cfg.Test {
		t.Errorf("unexpected flags %+v", cfg)
	}
	if !cfg.SendDetections {
		t.Error("absent switch disabled sendDetections")
	}

	cfg.ApplyFlags(Flags{ExtraComments: true})
	if !cfg.ExtraPickComments {
		t.Error("extra comments switch not applied")
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	cfg := Default()
	cfg.RingBufferSize = 0
	if err := cfg.Validate(); !qcerrors.IsCode(err, qcerrors.CodeConfigInvalid) {
		t.Errorf("expected invalid config, got %v", err)
	}
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	if err := Default().Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"Configuration:\n",
		"amplitude group                  AMPLITUDE\n",
		"calculateAmplitudeTypes          MLv, mB, mb\n",
		"update amplitude types           []\n",
		"ringBufferSize                   300s\n",
		"defaultTimeCorrection            -0.80s\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

func TestKeysCoverOptions(t *testing.T) {
	keys := Keys()
	if len(keys) != 29 {
		t.Errorf("expected 29 options, got %d", len(keys))
	}
}
