package parallelism

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/qcontroller/internal/circuitmodel"
	"github.com/aristath/qcontroller/internal/distribution"
	"github.com/aristath/qcontroller/internal/qerrors"
)

func memoryFunc(mb int64) RequiredMemoryFunc {
	return func(c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) int64 { return mb }
}

func perCircuitMemoryFunc(mb map[*circuitmodel.Circuit]int64) RequiredMemoryFunc {
	return func(c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) int64 { return mb[c] }
}

var noiseIdeal = &circuitmodel.NoiseModel{Ideal: true}

func TestPlanExperimentsSingleThreadSingleProcess(t *testing.T) {
	plan, err := PlanExperiments(
		[]*circuitmodel.Circuit{{}}, noiseIdeal, memoryFunc(1),
		0, 1, 0, 1, 1,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.ParallelExperiments)
	assert.False(t, plan.Nested)
}

func TestPlanExperimentsFourCircuitsFitBudget(t *testing.T) {
	cs := []*circuitmodel.Circuit{{}, {}, {}, {}}
	plan, err := PlanExperiments(cs, noiseIdeal, memoryFunc(10), 4, 4, 1000, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.ParallelExperiments)
}

func TestPlanExperimentsMemoryPrefixFit(t *testing.T) {
	a, b, c, d := &circuitmodel.Circuit{}, &circuitmodel.Circuit{}, &circuitmodel.Circuit{}, &circuitmodel.Circuit{}
	mb := map[*circuitmodel.Circuit]int64{a: 40, b: 40, c: 40, d: 90}
	cs := []*circuitmodel.Circuit{a, b, c, d}

	plan, err := PlanExperiments(cs, noiseIdeal, perCircuitMemoryFunc(mb), 4, 4, 100, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.ParallelExperiments, "sorted-descending prefix-fit: 90 alone fits, 90+40 does not")
}

func TestPlanExperimentsOutOfMemory(t *testing.T) {
	cs := []*circuitmodel.Circuit{{}}
	_, err := PlanExperiments(cs, noiseIdeal, memoryFunc(150), 2, 4, 100, 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, qerrors.ErrOutOfMemory)
}

func TestPlanExperimentsNestedFlag(t *testing.T) {
	cs := []*circuitmodel.Circuit{{}, {}}
	plan, err := PlanExperiments(cs, noiseIdeal, memoryFunc(1), 2, 4, 1000, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.ParallelExperiments)
	assert.True(t, plan.Nested, "2 of 4 threads used leaves headroom for nested shot-parallelism")
}

func TestPlanExperimentsNoNestingWhenSaturated(t *testing.T) {
	cs := []*circuitmodel.Circuit{{}, {}, {}, {}}
	plan, err := PlanExperiments(cs, noiseIdeal, memoryFunc(1), 4, 4, 1000, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.ParallelExperiments)
	assert.False(t, plan.Nested, "parallel_experiments == max_parallel_threads leaves no room to nest")
}

func TestPlanCircuitOneThousandShotsFourThreads(t *testing.T) {
	circuit := &circuitmodel.Circuit{Shots: 1000}
	plan, err := PlanCircuit(circuit, noiseIdeal, memoryFunc(1), 0, 4, 100000, 1, 1, distribution.State{DistributedShots: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, plan.ParallelShots)
	assert.Equal(t, 1000, plan.ShotsLocal)

	buckets := SplitShots(plan.ShotsLocal, plan.ParallelShots)
	assert.Equal(t, []int{250, 250, 250, 250}, buckets)
}

func TestPlanCircuitOneThousandOneShotsFourThreads(t *testing.T) {
	circuit := &circuitmodel.Circuit{Shots: 1001}
	plan, err := PlanCircuit(circuit, noiseIdeal, memoryFunc(1), 0, 4, 100000, 1, 1, distribution.State{DistributedShots: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, plan.ParallelShots)

	buckets := SplitShots(plan.ShotsLocal, plan.ParallelShots)
	assert.Equal(t, []int{251, 250, 250, 250}, buckets)
}

func TestPlanCircuitSingleShotWhenExperimentsParallel(t *testing.T) {
	circuit := &circuitmodel.Circuit{Shots: 1000}
	plan, err := PlanCircuit(circuit, noiseIdeal, memoryFunc(1), 0, 4, 100000, 1, 4, distribution.State{DistributedShots: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.ParallelShots, "parallel_experiments > 1 disables shot parallelism")
}

func TestPlanCircuitOutOfMemory(t *testing.T) {
	circuit := &circuitmodel.Circuit{Shots: 100}
	_, err := PlanCircuit(circuit, noiseIdeal, memoryFunc(500), 0, 4, 100, 1, 1, distribution.State{DistributedShots: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, qerrors.ErrOutOfMemory)
}

func TestSplitShotsRemainderToLowestIndex(t *testing.T) {
	assert.Equal(t, []int{3, 2, 2}, SplitShots(7, 3))
	assert.Equal(t, []int{2, 2, 2}, SplitShots(6, 3))
}
