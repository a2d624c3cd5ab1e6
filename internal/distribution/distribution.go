// Package distribution implements the DistributionPlanner: it splits
// experiments and shots across processes according to spec §4.2.
package distribution

import (
	"github.com/aristath/qcontroller/internal/circuitmodel"
)

// RequiredMemoryFunc estimates the memory, in MiB, a circuit under noise
// would require.
type RequiredMemoryFunc func(c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) int64

// State is the derived per-job distribution decision for this rank.
type State struct {
	NumProcesses           int
	MyRank                 int
	NumProcessPerExperiment int
	DistributedExperiments int
	GroupID                int
	RankInGroup            int
	ExperimentsBegin       int
	ExperimentsEnd         int
	DistributedShots       int
	DistributedShotsRank   int
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 1
	}
	return (a + b - 1) / b
}

// Plan computes the DistributionState for this rank, given the local
// circuit list, the shared noise model, a required-memory estimator, and
// the global (rank, size, memory budget).
func Plan(circuits []*circuitmodel.Circuit, noise *circuitmodel.NoiseModel, requiredMemoryMB RequiredMemoryFunc, myRank, numProcesses int, maxMemoryMB int64) State {
	s := State{NumProcesses: numProcesses, MyRank: myRank, NumProcessPerExperiment: 1}

	if maxMemoryMB > 0 {
		for _, c := range circuits {
			m := requiredMemoryMB(c, noise)
			if m > maxMemoryMB {
				factor := int(ceilDiv(m, maxMemoryMB))
				if factor > s.NumProcessPerExperiment {
					s.NumProcessPerExperiment = factor
				}
			}
		}
	}

	s.DistributedExperiments = numProcesses / s.NumProcessPerExperiment
	if s.DistributedExperiments < 1 {
		s.DistributedExperiments = 1
	}
	s.GroupID = myRank / s.NumProcessPerExperiment
	s.RankInGroup = myRank % s.NumProcessPerExperiment

	n := len(circuits)

	switch {
	case n == 0:
		s.ExperimentsBegin, s.ExperimentsEnd = 0, 0
		s.DistributedShots, s.DistributedShotsRank = 1, 0

	case n < s.DistributedExperiments:
		// Case A: fewer circuits than groups. Surplus groups become
		// shot-parallelism for the one experiment they share.
		s.ExperimentsBegin = s.GroupID % n
		s.ExperimentsEnd = s.ExperimentsBegin + 1

		distShots := s.DistributedExperiments / n
		extra := s.DistributedExperiments % n
		if s.GroupID%n < extra {
			distShots++
		}
		s.DistributedShots = distShots
		s.DistributedShotsRank = s.GroupID / n

		// Open Question (a): the clamp happens after the shot-rank is
		// computed from the pre-clamp quotient. Preserve verbatim: the
		// metadata consumers see the clamped value below, but
		// DistributedShotsRank above was derived from the unclamped
		// DistributedExperiments.
		s.DistributedExperiments = n

	default:
		// Case B: circuits >= groups. Whole experiments per group; no
		// shot distribution.
		s.ExperimentsBegin = n * s.GroupID / s.DistributedExperiments
		s.ExperimentsEnd = n * (s.GroupID + 1) / s.DistributedExperiments
		s.DistributedShots = 1
		s.DistributedShotsRank = 0
	}

	return s
}

// LocalShotCount returns this shot-rank's share of S total shots among D
// shot-ranks, per the floor-divide formula: floor(S(r+1)/D) - floor(Sr/D).
func LocalShotCount(totalShots, distributedShots, shotRank int) int {
	if distributedShots <= 1 {
		return totalShots
	}
	S := int64(totalShots)
	D := int64(distributedShots)
	r := int64(shotRank)
	hi := S * (r + 1) / D
	lo := S * r / D
	return int(hi - lo)
}
