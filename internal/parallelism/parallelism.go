// Package parallelism implements the two ParallelismPlanner halves: the
// experiment-level planner and the circuit-level (shot) planner, per
// spec §4.3.
package parallelism

import (
	"sort"

	"github.com/aristath/qcontroller/internal/circuitmodel"
	"github.com/aristath/qcontroller/internal/distribution"
	"github.com/aristath/qcontroller/internal/qerrors"
)

// RequiredMemoryFunc estimates the memory, in MiB, a circuit under noise
// would require.
type RequiredMemoryFunc func(c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) int64

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ExperimentPlan is the outcome of the experiment-level planner.
type ExperimentPlan struct {
	ParallelExperiments int
	Nested              bool
}

// PlanExperiments picks parallel_experiments for the local sub-range of
// circuits.
func PlanExperiments(
	circuits []*circuitmodel.Circuit,
	noise *circuitmodel.NoiseModel,
	requiredMemoryMB RequiredMemoryFunc,
	maxParallelExperiments, maxParallelThreads int,
	maxMemoryMB int64,
	numProcessPerExperiment, numProcesses int,
) (ExperimentPlan, error) {
	maxExperiments := maxParallelThreads
	if maxParallelExperiments > 0 {
		maxExperiments = minInt(maxParallelExperiments, maxParallelThreads)
	}

	if maxExperiments == 1 && numProcesses == 1 {
		return ExperimentPlan{ParallelExperiments: 1}, nil
	}

	type memEntry struct{ mb int64 }
	entries := make([]memEntry, len(circuits))
	for i, c := range circuits {
		entries[i] = memEntry{mb: requiredMemoryMB(c, noise) / int64(numProcessPerExperiment)}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mb > entries[j].mb })

	budget := maxMemoryMB * int64(numProcessPerExperiment)
	var sum int64
	prefix := 0
	for _, e := range entries {
		if sum+e.mb > budget {
			break
		}
		sum += e.mb
		prefix++
	}
	if prefix == 0 && len(entries) > 0 {
		return ExperimentPlan{}, &qerrors.OutOfMemoryError{RequiredMB: entries[0].mb, BudgetMB: budget}
	}

	candidate := prefix
	parallelExperiments := minInt(minInt(candidate, maxExperiments), minInt(maxParallelThreads, len(circuits)))
	if parallelExperiments < 1 {
		parallelExperiments = 1
	}

	nested := parallelExperiments > 1 && parallelExperiments < maxParallelThreads
	return ExperimentPlan{ParallelExperiments: parallelExperiments, Nested: nested}, nil
}

// CircuitPlan is the outcome of the circuit-level (shot) planner.
type CircuitPlan struct {
	ParallelShots       int
	ParallelStateUpdate int
	ShotsLocal          int
}

// PlanCircuit picks parallel_shots and parallel_state_update for one
// circuit, given the experiment-level decision already made.
func PlanCircuit(
	c *circuitmodel.Circuit,
	noise *circuitmodel.NoiseModel,
	requiredMemoryMB RequiredMemoryFunc,
	maxParallelShots, maxParallelThreads int,
	maxMemoryMB int64,
	numProcessPerExperiment int,
	parallelExperiments int,
	dist distribution.State,
) (CircuitPlan, error) {
	maxShots := maxParallelThreads
	if maxParallelShots > 0 {
		maxShots = minInt(maxParallelShots, maxParallelThreads)
	}

	shotsLocal := distribution.LocalShotCount(c.Shots, dist.DistributedShots, dist.DistributedShotsRank)

	if maxShots == 1 || parallelExperiments > 1 {
		stateUpdate := stateUpdateFor(1, parallelExperiments, maxParallelThreads)
		return CircuitPlan{ParallelShots: 1, ParallelStateUpdate: stateUpdate, ShotsLocal: shotsLocal}, nil
	}

	circMB := requiredMemoryMB(c, noise) / int64(numProcessPerExperiment)
	if circMB < 1 {
		circMB = 1
	}
	if maxMemoryMB > 0 && circMB > maxMemoryMB {
		return CircuitPlan{}, &qerrors.OutOfMemoryError{RequiredMB: circMB, BudgetMB: maxMemoryMB}
	}

	byMemory := maxShots
	if maxMemoryMB > 0 {
		byMemory = int(maxMemoryMB / circMB)
	}
	parallelShots := minInt(minInt(byMemory, maxShots), shotsLocal)
	if parallelShots < 1 {
		parallelShots = 1
	}

	stateUpdate := stateUpdateFor(parallelShots, parallelExperiments, maxParallelThreads)
	return CircuitPlan{ParallelShots: parallelShots, ParallelStateUpdate: stateUpdate, ShotsLocal: shotsLocal}, nil
}

func stateUpdateFor(parallelShots, parallelExperiments, maxParallelThreads int) int {
	if parallelShots > 1 {
		return maxInt(1, maxParallelThreads/parallelShots)
	}
	return maxInt(1, maxParallelThreads/maxInt(1, parallelExperiments))
}

// SplitShots splits total shots into n subshot buckets whose floors sum
// to total and whose remainder is distributed one-per-bucket starting at
// index 0.
func SplitShots(total, n int) []int {
	if n <= 0 {
		n = 1
	}
	base := total / n
	remainder := total % n
	buckets := make([]int, n)
	for i := range buckets {
		buckets[i] = base
		if i < remainder {
			buckets[i]++
		}
	}
	return buckets
}
