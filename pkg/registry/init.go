package registry

import "github.com/seisqc/seisqc/pkg/qc"

func init() {
	Register(qc.AvailabilityPluginName, qc.NewAvailabilityPlugin)
}
