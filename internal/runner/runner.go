// Package runner implements CircuitRunner: execution of a single
// experiment on this rank, per spec §4.5.
package runner

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/qcontroller/internal/backend"
	"github.com/aristath/qcontroller/internal/circuitmodel"
	"github.com/aristath/qcontroller/internal/distribution"
	"github.com/aristath/qcontroller/internal/parallelism"
	"github.com/aristath/qcontroller/internal/qerrors"
	"github.com/aristath/qcontroller/internal/result"
	"github.com/aristath/qcontroller/internal/workerpool"
)

// Runner executes one experiment: transpile, plan shots, invoke the
// back-end one or more times, and combine bucket results.
type Runner struct {
	Backend           backend.Backend
	BarrierReduction  backend.Pass
	QubitTruncation   backend.Pass
	Log               zerolog.Logger
}

// RequiredMemoryMB adapts the back-end's estimator to the
// parallelism/distribution packages' function signature.
func (r *Runner) RequiredMemoryMB(c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel) int64 {
	return r.Backend.RequiredMemoryMB(c, noise)
}

// Run executes circuit under its own cloned noise model and returns the
// merged experiment result. It never returns a status of error on its
// own result value for backend failures: callers (BatchController) catch
// the error at the experiment boundary and record it there instead,
// per spec §4.5 step 10.
func (r *Runner) Run(
	circuit *circuitmodel.Circuit,
	noise *circuitmodel.NoiseModel,
	config map[string]any,
	cfg circuitmodel.ParallelismConfig,
	parallelExperiments int,
	dist distribution.State,
) (*result.ExperimentResult, error) {
	start := time.Now()
	noiseClone := noise.Clone()

	// Forward the job's free-form config map to the back-end and
	// transpile passes, ensuring validation_threshold always reflects
	// the planner's defaulted value (spec §6: "forwarded to back-end
	// validators") even when the caller's document omitted the key.
	config = withValidationThreshold(config, cfg.ValidationThreshold)

	if r.BarrierReduction != nil {
		r.BarrierReduction.SetConfig(config)
		if err := r.BarrierReduction.OptimizeCircuit(circuit, noiseClone, r.Backend.OpSet()); err != nil {
			return nil, fmt.Errorf("barrier reduction: %w", err)
		}
	}
	if cfg.TruncateQubits && r.QubitTruncation != nil {
		r.QubitTruncation.SetConfig(config)
		if err := r.QubitTruncation.OptimizeCircuit(circuit, noiseClone, r.Backend.OpSet()); err != nil {
			return nil, fmt.Errorf("qubit truncation: %w", err)
		}
	}

	var plan parallelism.CircuitPlan
	if explicitExperiments, explicitShots, explicitStateUpdate, ok := cfg.ExplicitOverrides(); ok {
		_ = explicitExperiments
		shotsLocal := distribution.LocalShotCount(circuit.Shots, dist.DistributedShots, dist.DistributedShotsRank)
		plan = parallelism.CircuitPlan{ParallelShots: explicitShots, ParallelStateUpdate: explicitStateUpdate, ShotsLocal: shotsLocal}
	} else {
		var err error
		numProcessPerExperiment := dist.NumProcessPerExperiment
		if numProcessPerExperiment < 1 {
			numProcessPerExperiment = 1
		}
		plan, err = parallelism.PlanCircuit(
			circuit, noiseClone, r.RequiredMemoryMB,
			cfg.MaxParallelShots, effectiveMaxThreads(cfg), cfg.MaxMemoryMB,
			numProcessPerExperiment, parallelExperiments, dist,
		)
		if err != nil {
			return nil, err
		}
	}

	merged := result.NewExperimentResult()
	merged.SetConfig(result.ConfigFromMap(config))

	if plan.ParallelShots <= 1 {
		if err := r.Backend.Run(circuit, noiseClone, config, plan.ShotsLocal, circuit.Seed, merged); err != nil {
			return nil, &qerrors.BackendError{Cause: err}
		}
	} else {
		buckets := parallelism.SplitShots(plan.ShotsLocal, plan.ParallelShots)
		bucketResults := make([]*result.ExperimentResult, plan.ParallelShots)
		bucketSeconds := make([]float64, plan.ParallelShots)
		errs := workerpool.Run(plan.ParallelShots, plan.ParallelShots, func(i int) error {
			bucketStart := time.Now()
			bucketNoise := noiseClone.Clone()
			bucketResult := result.NewExperimentResult()
			seed := circuit.Seed + int64(i)
			correlationID := uuid.NewString()
			r.Log.Debug().Str("bucket_id", correlationID).Int("bucket", i).Int64("seed", seed).Msg("running shot bucket")
			if err := r.Backend.Run(circuit, bucketNoise, config, buckets[i], seed, bucketResult); err != nil {
				return err
			}
			bucketResults[i] = bucketResult
			bucketSeconds[i] = time.Since(bucketStart).Seconds()
			return nil
		})

		var firstErr error
		for _, e := range errs {
			if e != nil && firstErr == nil {
				firstErr = e
			}
		}
		if firstErr != nil {
			return nil, &qerrors.BackendError{Cause: firstErr}
		}
		for _, br := range bucketResults {
			merged.Combine(br)
		}
		if len(bucketSeconds) > 1 {
			meanSeconds, varianceSeconds := stat.MeanVariance(bucketSeconds, nil)
			merged.Metadata["bucket_duration_mean_s"] = meanSeconds
			merged.Metadata["bucket_duration_variance_s"] = varianceSeconds
		}
	}

	merged.Status = result.StatusCompleted
	merged.Shots = plan.ShotsLocal
	merged.Seed = circuit.Seed
	merged.Metadata["time_taken"] = time.Since(start).Seconds()
	merged.Metadata["parallel_shots"] = plan.ParallelShots
	merged.Metadata["parallel_state_update"] = plan.ParallelStateUpdate
	if dist.DistributedShots > 1 {
		merged.Metadata["distributed_shots"] = dist.DistributedShots
	}

	return merged, nil
}

func effectiveMaxThreads(cfg circuitmodel.ParallelismConfig) int {
	if cfg.MaxParallelThreads < 1 {
		return 1
	}
	return cfg.MaxParallelThreads
}

// withValidationThreshold returns a copy of config with validation_threshold
// set to threshold, leaving every other key untouched. config may be nil.
func withValidationThreshold(config map[string]any, threshold float64) map[string]any {
	out := make(map[string]any, len(config)+1)
	for k, v := range config {
		out[k] = v
	}
	out["validation_threshold"] = threshold
	return out
}
