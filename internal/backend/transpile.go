package backend

import (
	"github.com/aristath/qcontroller/internal/circuitmodel"
)

// Pass is a transpiler optimization pass. The controller invokes at most
// two: barrier reduction (whenever one is supplied) and qubit truncation
// (when one is supplied and the job's TruncateQubits flag is set).
type Pass interface {
	// SetConfig forwards the job's free-form configuration map.
	SetConfig(config map[string]any)

	// OptimizeCircuit rewrites circuit and noise in place against the
	// back-end's supported op-set, returning a non-nil error on failure.
	OptimizeCircuit(circuit *circuitmodel.Circuit, noise *circuitmodel.NoiseModel, backendOpSet circuitmodel.OpSet) error
}
