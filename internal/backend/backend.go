// Package backend defines the capability interface the controller
// dispatches work to. The controller itself is non-polymorphic: callers
// supply a concrete Backend and the controller drives it.
package backend

import (
	"github.com/aristath/qcontroller/internal/circuitmodel"
	"github.com/aristath/qcontroller/internal/result"
)

// Backend is the pluggable subsystem that simulates shots of a circuit
// and returns aggregated data. Implementations must be safe to call
// concurrently as long as each call receives its own NoiseModel clone.
type Backend interface {
	// OpSet returns the set of instruction kinds this back-end supports.
	OpSet() circuitmodel.OpSet

	// Name returns a human-readable identifier used in error messages.
	Name() string

	// RequiredMemoryMB estimates the memory, in MiB, a single execution
	// of circuit under noise would require.
	RequiredMemoryMB(circuit *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) int64

	// Run evolves `shots` independent trajectories of circuit under
	// noise, writing aggregate data into out. config is the job's
	// free-form configuration map, forwarded read-only.
	Run(circuit *circuitmodel.Circuit, noise *circuitmodel.NoiseModel, config map[string]any, shots int, seed int64, out *result.ExperimentResult) error
}
