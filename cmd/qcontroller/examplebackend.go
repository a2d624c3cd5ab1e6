package main

import (
	"math/rand"

	"github.com/aristath/qcontroller/internal/circuitmodel"
	"github.com/aristath/qcontroller/internal/result"
)

// exampleBackend is a minimal stand-in for the real quantum state
// back-end the controller is designed to drive. It does not simulate
// anything: it draws a uniformly random bitstring per shot, seeded
// deterministically, purely so the controller is exercisable end to end
// without a real simulation engine (which is out of scope, §1).
type exampleBackend struct {
	ops circuitmodel.OpSet
}

func newExampleBackend() *exampleBackend {
	return &exampleBackend{ops: circuitmodel.NewOpSet("h", "cx", "x", "measure", "barrier", "id")}
}

func (b *exampleBackend) OpSet() circuitmodel.OpSet { return b.ops }
func (b *exampleBackend) Name() string              { return "example_backend" }

func (b *exampleBackend) RequiredMemoryMB(c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) int64 {
	// A dense statevector of n qubits needs roughly 16 bytes per
	// amplitude (complex128), 2^n amplitudes.
	bytes := int64(16) << uint(c.NumQubits)
	mb := bytes / (1024 * 1024)
	if mb < 1 {
		mb = 1
	}
	return mb
}

func (b *exampleBackend) Run(c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel, config map[string]any, shots int, seed int64, out *result.ExperimentResult) error {
	rnd := rand.New(rand.NewSource(seed))
	for i := 0; i < shots; i++ {
		bitstring := make([]byte, c.NumQubits)
		for q := 0; q < c.NumQubits; q++ {
			if rnd.Intn(2) == 1 {
				bitstring[q] = '1'
			} else {
				bitstring[q] = '0'
			}
		}
		out.Counts[string(bitstring)]++
	}
	out.Shots = shots
	return nil
}
