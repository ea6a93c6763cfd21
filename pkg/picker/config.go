// Package picker holds the configuration contract of the automatic picker
// that runs next to the QC engine. Options are read from a YAML subtree,
// either nested ("thresholds: {triggerOn: 3}") or with dotted keys
// ("thresholds.triggerOn: 3"). A mapping under "amplitudes" sets its child
// options; the amplitude list itself then needs the sequence form
// elsewhere. Absent options keep their defaults; unknown options and type
// mismatches are errors.
package picker

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
)

// Config is the picker configuration.
type Config struct {
	AmplitudeGroup string
	PhaseHint      string
	CommentID      string
	CommentText    string

	CalculateAmplitudes bool
	Filter              string
	UseAllStreams       bool

	// Times in seconds.
	TimeCorrection   float64
	RingBufferSize   float64
	LeadTime         float64
	InitTime         float64
	GapInterpolation bool

	TriggerOn         float64
	TriggerOff        float64
	MaxGapLength      float64
	DeadTime          float64
	MinDuration       float64
	MaxDuration       float64
	AmplMaxTimeWindow float64
	MinAmplOffset     float64

	// Amplitude types, sorted and without duplicates.
	Amplitudes       []string
	AmplitudeUpdates []string

	Picker              string
	SPicker             string
	FX                  string
	KillPendingSPickers bool
	SendDetections      bool
	ExtraPickComments   bool
	Playback            bool

	// Set from the command line only.
	Test        bool
	Offline     bool
	DumpRecords bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		AmplitudeGroup:      "AMPLITUDE",
		PhaseHint:           "P",
		CalculateAmplitudes: true,
		Filter:              "RMHP(10)>>ITAPER(30)>>BW(4,0.7,2)>>STALTA(2,80)",
		TimeCorrection:      -0.8,
		RingBufferSize:      300,
		LeadTime:            60,
		InitTime:            60,
		TriggerOn:           3,
		TriggerOff:          1.5,
		MaxGapLength:        4.5,
		DeadTime:            30,
		MinDuration:         -1,
		MaxDuration:         -1,
		AmplMaxTimeWindow:   10,
		MinAmplOffset:       3,
		Amplitudes:          []string{"MLv", "mB", "mb"},
		AmplitudeUpdates:    []string{},
		KillPendingSPickers: true,
	}
}

type option func(c *Config, n *yaml.Node) error

func str(field func(*Config) *string) option {
	return func(c *Config, n *yaml.Node) error {
		return n.Decode(field(c))
	}
}

func boolean(field func(*Config) *bool) option {
	return func(c *Config, n *yaml.Node) error {
		return n.Decode(field(c))
	}
}

func number(field func(*Config) *float64) option {
	return func(c *Config, n *yaml.Node) error {
		return n.Decode(field(c))
	}
}

func set(field func(*Config) *[]string) option {
	return func(c *Config, n *yaml.Node) error {
		var values []string
		if err := n.Decode(&values); err != nil {
			return err
		}
		*field(c) = normalizeSet(values)
		return nil
	}
}

var options = map[string]option{
	"connection.amplitudeGroup":    str(func(c *Config) *string { return &c.AmplitudeGroup }),
	"phaseHint":                    str(func(c *Config) *string { return &c.PhaseHint }),
	"comment.ID":                   str(func(c *Config) *string { return &c.CommentID }),
	"comment.text":                 str(func(c *Config) *string { return &c.CommentText }),
	"calculateAmplitudes":          boolean(func(c *Config) *bool { return &c.CalculateAmplitudes }),
	"filter":                       str(func(c *Config) *string { return &c.Filter }),
	"useAllStreams":                boolean(func(c *Config) *bool { return &c.UseAllStreams }),
	"timeCorrection":               number(func(c *Config) *float64 { return &c.TimeCorrection }),
	"ringBufferSize":               number(func(c *Config) *float64 { return &c.RingBufferSize }),
	"leadTime":                     number(func(c *Config) *float64 { return &c.LeadTime }),
	"initTime":                     number(func(c *Config) *float64 { return &c.InitTime }),
	"gapInterpolation":             boolean(func(c *Config) *bool { return &c.GapInterpolation }),
	"thresholds.triggerOn":         number(func(c *Config) *float64 { return &c.TriggerOn }),
	"thresholds.triggerOff":        number(func(c *Config) *float64 { return &c.TriggerOff }),
	"thresholds.maxGapLength":      number(func(c *Config) *float64 { return &c.MaxGapLength }),
	"thresholds.deadTime":          number(func(c *Config) *float64 { return &c.DeadTime }),
	"thresholds.minDuration":       number(func(c *Config) *float64 { return &c.MinDuration }),
	"thresholds.maxDuration":       number(func(c *Config) *float64 { return &c.MaxDuration }),
	"thresholds.amplMaxTimeWindow": number(func(c *Config) *float64 { return &c.AmplMaxTimeWindow }),
	"thresholds.minAmplOffset":     number(func(c *Config) *float64 { return &c.MinAmplOffset }),
	"amplitudes":                   set(func(c *Config) *[]string { return &c.Amplitudes }),
	"amplitudes.enableUpdate":      set(func(c *Config) *[]string { return &c.AmplitudeUpdates }),
	"picker":                       str(func(c *Config) *string { return &c.Picker }),
	"spicker":                      str(func(c *Config) *string { return &c.SPicker }),
	"fx":                           str(func(c *Config) *string { return &c.FX }),
	"killPendingSPickers":          boolean(func(c *Config) *bool { return &c.KillPendingSPickers }),
	"sendDetections":               boolean(func(c *Config) *bool { return &c.SendDetections }),
	"extraPickComments":            boolean(func(c *Config) *bool { return &c.ExtraPickComments }),
	"playback":                     boolean(func(c *Config) *bool { return &c.Playback }),
}

// Keys returns the recognised option keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse reads options from node on top of the defaults. A nil or empty
// node yields Default().
func Parse(node *yaml.Node) (Config, error) {
	cfg := Default()
	if node == nil || node.Kind == 0 {
		return cfg, nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return cfg, nil
		}
		node = node.Content[0]
	}

	flat := make(map[string]*yaml.Node)
	if err := flatten(node, "", flat); err != nil {
		return Config{}, err
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		opt, ok := options[key]
		if !ok {
			return Config{}, qcerrors.ConfigParse(key, fmt.Errorf("unknown picker option"))
		}
		if err := opt(&cfg, flat[key]); err != nil {
			return Config{}, qcerrors.ConfigParse(key, err).WithContext("line", flat[key].Line)
		}
	}
	return cfg, nil
}

// ParseBytes parses a YAML document holding picker options.
func ParseBytes(data []byte) (Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, qcerrors.ConfigParse("picker", err)
	}
	return Parse(&doc)
}

func flatten(n *yaml.Node, prefix string, out map[string]*yaml.Node) error {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		if prefix == "" {
			return qcerrors.ConfigParse("picker", fmt.Errorf("expected a mapping, got %s", kindName(n.Kind)))
		}
		out[prefix] = n
		return nil
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		key := k.Value
		if prefix != "" {
			key = prefix + "." + key
		}
		// Keep option values that are themselves mappings as leaves so
		// that the decode reports a type error instead of an unknown key.
		// An option with child options (amplitudes) descends instead.
		if _, isOption := options[key]; isOption && !(isMapping(v) && hasChildren(key)) {
			if _, dup := out[key]; dup {
				return qcerrors.ConfigParse(key, fmt.Errorf("duplicate option"))
			}
			out[key] = v
			continue
		}
		if err := flatten(v, key, out); err != nil {
			return err
		}
	}
	return nil
}

func isMapping(n *yaml.Node) bool {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n.Kind == yaml.MappingNode
}

func hasChildren(key string) bool {
	for k := range options {
		if strings.HasPrefix(k, key+".") {
			return true
		}
	}
	return false
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	default:
		return fmt.Sprintf("node kind %d", k)
	}
}

func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Flags are the command-line switches that override file options.
type Flags struct {
	Test           bool
	Offline        bool
	EP             bool
	DumpRecords    bool
	SendDetections bool
	ExtraComments  bool
}

// ApplyFlags overrides options from the command line. Switches can only
// enable sendDetections and extraPickComments, never disable them.
func (c *Config) ApplyFlags(f Flags) {
	c.Test = f.Test
	c.Offline = f.Offline || f.EP
	c.DumpRecords = f.DumpRecords
	if f.SendDetections {
		c.SendDetections = true
	}
	if f.ExtraComments {
		c.ExtraPickComments = true
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.PhaseHint == "":
		return qcerrors.New(qcerrors.CodeConfigInvalid, "phaseHint must not be empty")
	case c.RingBufferSize <= 0:
		return qcerrors.New(qcerrors.CodeConfigInvalid, "ringBufferSize must be positive").
			WithContext("ringBufferSize", c.RingBufferSize)
	case c.LeadTime < 0 || c.InitTime < 0:
		return qcerrors.New(qcerrors.CodeConfigInvalid, "leadTime and initTime must not be negative")
	case c.MaxGapLength < 0:
		return qcerrors.New(qcerrors.CodeConfigInvalid, "thresholds.maxGapLength must not be negative")
	}
	return nil
}

// RingBuffer returns RingBufferSize as a duration.
func (c Config) RingBuffer() time.Duration {
	return time.Duration(c.RingBufferSize * float64(time.Second))
}

// Dump writes a human readable listing of the configuration.
func (c Config) Dump(w io.Writer) error {
	rows := []struct {
		label string
		value string
	}{
		{"amplitude group", c.AmplitudeGroup},
		{"testMode", boolString(c.Test)},
		{"offline", boolString(c.Offline)},
		{"useAllStreams", boolString(c.UseAllStreams)},
		{"calculateAmplitudes", boolString(c.CalculateAmplitudes)},
		{"calculateAmplitudeTypes", listString(c.Amplitudes)},
		{"update amplitude types", listString(c.AmplitudeUpdates)},
		{"interpolateGaps", boolString(c.GapInterpolation)},
		{"maxGapLength", fmt.Sprintf("%.2fs", c.MaxGapLength)},
		{"defaultFilter", c.Filter},
		{"defaultTriggerOnThreshold", fmt.Sprintf("%.2f", c.TriggerOn)},
		{"defaultTriggerOffThreshold", fmt.Sprintf("%.2f", c.TriggerOff)},
		{"minDuration", fmt.Sprintf("%.2fs", c.MinDuration)},
		{"maxDuration", fmt.Sprintf("%.2fs", c.MaxDuration)},
		{"triggerDeadTime", fmt.Sprintf("%.2fs", c.DeadTime)},
		{"amplitudeMaxTimeWindow", fmt.Sprintf("%.2fs", c.AmplMaxTimeWindow)},
		{"amplitudeMinOffset", fmt.Sprintf("%.2fs", c.MinAmplOffset)},
		{"defaultTimeCorrection", fmt.Sprintf("%.2fs", c.TimeCorrection)},
		{"ringBufferSize", fmt.Sprintf("%.0fs", c.RingBufferSize)},
		{"leadTime", fmt.Sprintf("%.0fs", c.LeadTime)},
		{"initTime", fmt.Sprintf("%.0fs", c.InitTime)},
		{"pickerType", c.Picker},
		{"secondaryPickerType", c.SPicker},
		{"killPendingSPickers", boolString(c.KillPendingSPickers)},
		{"sendDetections", boolString(c.SendDetections)},
	}

	if _, err := fmt.Fprintln(w, "Configuration:"); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%-33s%s\n", r.label, r.value); err != nil {
			return err
		}
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func listString(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	return strings.Join(values, ", ")
}
