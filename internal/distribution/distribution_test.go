package distribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/qcontroller/internal/circuitmodel"
)

func fixedMemory(mb int64) RequiredMemoryFunc {
	return func(c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) int64 { return mb }
}

func circuits(n int) []*circuitmodel.Circuit {
	out := make([]*circuitmodel.Circuit, n)
	for i := range out {
		out[i] = &circuitmodel.Circuit{Shots: 100}
	}
	return out
}

func TestPlanNoCircuits(t *testing.T) {
	s := Plan(nil, &circuitmodel.NoiseModel{Ideal: true}, fixedMemory(1), 0, 1, 0)
	assert.Equal(t, 0, s.ExperimentsBegin)
	assert.Equal(t, 0, s.ExperimentsEnd)
	assert.Equal(t, 1, s.DistributedShots)
}

func TestPlanCaseB_OneCircuitPerRank(t *testing.T) {
	noise := &circuitmodel.NoiseModel{Ideal: true}
	cs := circuits(4)

	for rank := 0; rank < 4; rank++ {
		s := Plan(cs, noise, fixedMemory(1), rank, 4, 0)
		require.Equal(t, 1, s.NumProcessPerExperiment)
		assert.Equal(t, 4, s.DistributedExperiments)
		assert.Equal(t, rank, s.ExperimentsBegin)
		assert.Equal(t, rank+1, s.ExperimentsEnd)
		assert.Equal(t, 1, s.DistributedShots, "one process per experiment means no shot splitting")
	}
}

func TestPlanCaseA_FewerCircuitsThanGroups(t *testing.T) {
	noise := &circuitmodel.NoiseModel{Ideal: true}
	cs := circuits(2)

	type want struct{ begin, shotRank int }
	expect := map[int]want{
		0: {0, 0},
		1: {1, 0},
		2: {0, 1},
		3: {1, 1},
	}

	for rank := 0; rank < 4; rank++ {
		s := Plan(cs, noise, fixedMemory(1), rank, 4, 0)
		assert.Equal(t, 2, s.DistributedExperiments, "clamped to the circuit count")
		assert.Equal(t, 2, s.DistributedShots, "4 groups shared by 2 circuits means 2 shot-ranks each")
		assert.Equal(t, expect[rank].begin, s.ExperimentsBegin, "rank %d", rank)
		assert.Equal(t, expect[rank].shotRank, s.DistributedShotsRank, "rank %d", rank)
	}
}

func TestPlanMemoryDrivenProcessPerExperiment(t *testing.T) {
	noise := &circuitmodel.NoiseModel{Ideal: true}
	cs := circuits(1)

	// A circuit requiring 350MB under a 100MB budget needs ceil(350/100)=4
	// processes per experiment.
	s := Plan(cs, noise, fixedMemory(350), 0, 4, 100)
	assert.Equal(t, 4, s.NumProcessPerExperiment)
	assert.Equal(t, 1, s.DistributedExperiments)
	assert.Equal(t, 0, s.GroupID)
	assert.Equal(t, 0, s.RankInGroup)
}

func TestLocalShotCountNoSplit(t *testing.T) {
	assert.Equal(t, 1000, LocalShotCount(1000, 1, 0))
}

func TestLocalShotCountEvenSplit(t *testing.T) {
	for r := 0; r < 4; r++ {
		assert.Equal(t, 250, LocalShotCount(1000, 4, r))
	}
}

func TestLocalShotCountRemainderGoesToLastRank(t *testing.T) {
	got := make([]int, 4)
	total := 0
	for r := 0; r < 4; r++ {
		got[r] = LocalShotCount(1001, 4, r)
		total += got[r]
	}
	assert.Equal(t, 1001, total)
	assert.Equal(t, []int{250, 250, 250, 251}, got)
}
