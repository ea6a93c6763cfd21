package qc

import (
	"time"

	"go.uber.org/zap"
)

// AvailabilityPluginName is the registered name of the availability plugin.
const AvailabilityPluginName = "QcAvailability"

// AvailabilityParameters are the report parameter names emitted by the
// availability plugin, in emission order.
var AvailabilityParameters = []string{"availability", "gaps count", "overlaps count"}

// Plugin is the capability set of a QC plugin bound to one stream.
type Plugin struct {
	Name           string
	ParameterNames []string

	// GenerateReport evaluates v. The returned values align with
	// ParameterNames; nil means nothing to report.
	GenerateReport func(v View) []float64

	// GenerateAlert compares a short-term against a long-term view.
	GenerateAlert func(short, long View)

	// Timeout returns an entry to append when the stream has been idle
	// since the previous tick.
	Timeout func(v View, now time.Time) (Parameter, bool)
}

// Factory creates a plugin instance for a stream. Per-stream state lives
// in the returned closures.
type Factory func(streamID string, logger *zap.Logger) *Plugin

// NewAvailabilityPlugin is the Factory of the availability plugin.
func NewAvailabilityPlugin(streamID string, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	injector := NewTimeoutInjector(logger.With(zap.String("plugin", AvailabilityPluginName)))

	return &Plugin{
		Name:           AvailabilityPluginName,
		ParameterNames: AvailabilityParameters,
		GenerateReport: func(v View) []float64 {
			// No reference rate, nothing to report.
			if v.Empty() || v.Front().IsTimeout() {
				return nil
			}
			return Availability(v).Values()
		},
		GenerateAlert: func(short, long View) {},
		Timeout:       injector.Tick,
	}
}
