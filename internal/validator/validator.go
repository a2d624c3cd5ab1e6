// Package validator implements the two pre-execution checks: op-set
// containment and memory-budget fit, per spec §4.4.
package validator

import (
	"sort"

	"github.com/aristath/qcontroller/internal/backend"
	"github.com/aristath/qcontroller/internal/circuitmodel"
	"github.com/aristath/qcontroller/internal/qerrors"
)

// ValidateOpSet reports whether circuit and noise are both valid for be,
// returning a *qerrors.ValidationError naming the offending side when
// not.
func ValidateOpSet(be backend.Backend, circuit *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) error {
	beOps := be.OpSet()

	if !beOps.Contains(circuit.OpSet) {
		missing := beOps.Difference(circuit.OpSet)
		sort.Strings(missing)
		return &qerrors.ValidationError{Backend: be.Name(), Side: "circuit", Missing: missing}
	}

	if !noise.IsIdeal() {
		if !beOps.Contains(noise.OpSet) {
			missing := beOps.Difference(noise.OpSet)
			sort.Strings(missing)
			return &qerrors.ValidationError{Backend: be.Name(), Side: "noise", Missing: missing}
		}
	}

	return nil
}

// ValidOpSet is the boolean counterpart to ValidateOpSet, for callers
// that prefer a boolean over an error.
func ValidOpSet(be backend.Backend, circuit *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) bool {
	return ValidateOpSet(be, circuit, noise) == nil
}

// ValidateMemory requires required_memory_mb(circuit) / numProcessPerExperiment
// <= maxMemoryMB whenever a budget is configured.
func ValidateMemory(be backend.Backend, circuit *circuitmodel.Circuit, noise *circuitmodel.NoiseModel, numProcessPerExperiment int, maxMemoryMB int64) error {
	if maxMemoryMB <= 0 {
		return nil
	}
	required := be.RequiredMemoryMB(circuit, noise) / int64(numProcessPerExperiment)
	if required > maxMemoryMB {
		ref := headerRef(circuit)
		return &qerrors.ValidationError{Backend: be.Name(), CircuitRef: ref, Reason: "required memory exceeds budget"}
	}
	return nil
}

func headerRef(c *circuitmodel.Circuit) string {
	if len(c.Header) == 0 {
		return "<unnamed circuit>"
	}
	return string(c.Header)
}
