// Package controller implements BatchController, the top-level
// orchestrator described in spec §4.6: parse job, plan distribution and
// parallelism, run experiments, and assemble the final Result.
package controller

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/aristath/qcontroller/internal/backend"
	"github.com/aristath/qcontroller/internal/circuitmodel"
	"github.com/aristath/qcontroller/internal/config"
	"github.com/aristath/qcontroller/internal/distribution"
	"github.com/aristath/qcontroller/internal/fabric"
	"github.com/aristath/qcontroller/internal/memprobe"
	"github.com/aristath/qcontroller/internal/parallelism"
	"github.com/aristath/qcontroller/internal/qerrors"
	"github.com/aristath/qcontroller/internal/result"
	"github.com/aristath/qcontroller/internal/runner"
	"github.com/aristath/qcontroller/internal/validator"
	"github.com/aristath/qcontroller/internal/workerpool"
)

// Controller is the batch-level orchestrator. It owns the process-wide
// nesting toggle; no other component reads or writes it.
type Controller struct {
	Backend          backend.Backend
	BarrierReduction backend.Pass
	QubitTruncation  backend.Pass
	Fabric           fabric.Fabric
	Log              zerolog.Logger

	mem     *memprobe.Probe
	mu      sync.Mutex // guards the nesting toggle across parallel regions
	nesting workerpool.NestingToggle
}

// New builds a Controller bound to a back-end and optional transpile
// passes. fab may be nil, in which case a 1-rank fabric.Local is used.
func New(be backend.Backend, barrierReduction, qubitTruncation backend.Pass, fab fabric.Fabric, log zerolog.Logger) *Controller {
	if fab == nil {
		fab = fabric.Local{}
	}
	return &Controller{
		Backend:          be,
		BarrierReduction: barrierReduction,
		QubitTruncation:  qubitTruncation,
		Fabric:           fab,
		Log:              log.With().Str("component", "controller").Logger(),
		mem:              memprobe.New(fab, log),
	}
}

// ExecuteBlob parses a job document and executes it, stamping the job id
// and header onto the returned Result. A parse failure produces a Result
// with status error and no experiments.
func (bc *Controller) ExecuteBlob(blob []byte) *result.Result {
	start := time.Now()

	job, err := config.DecodeJob(blob)
	if err != nil {
		return &result.Result{
			Status:  result.StatusError,
			Message: (&qerrors.ParseError{Cause: err}).Error(),
		}
	}

	res := bc.Execute(job.Circuits, job.Noise, job.Config, job.RawConfig)
	res.Metadata["time_taken"] = time.Since(start).Seconds()
	res.JobID = job.ID
	res.Header = job.Header
	return res
}

// Execute runs the given circuits under noise, per cfg, on this rank.
// rawConfig is the job document's free-form configuration map, forwarded
// read-only to the back-end and transpile passes (and to each
// ExperimentResult's channel config); it may be nil.
func (bc *Controller) Execute(circuits []*circuitmodel.Circuit, noise *circuitmodel.NoiseModel, cfg circuitmodel.ParallelismConfig, rawConfig map[string]any) *result.Result {
	rank, size := bc.Fabric.Rank(), bc.Fabric.Size()

	cfg = bc.resolveThreadBudget(cfg)
	cfg = bc.resolveMemoryBudget(cfg)

	rnr := &runner.Runner{Backend: bc.Backend, BarrierReduction: bc.BarrierReduction, QubitTruncation: bc.QubitTruncation, Log: bc.Log}

	dist := distribution.Plan(circuits, noise, rnr.RequiredMemoryMB, rank, size, cfg.MaxMemoryMB)
	local := circuits[dist.ExperimentsBegin:dist.ExperimentsEnd]

	res := result.NewResult(len(local))

	if err := bc.validateLocal(local, noise, dist.NumProcessPerExperiment, cfg.MaxMemoryMB); err != nil {
		res.Status = result.StatusError
		res.Message = err.Error()
		return res
	}

	maxQubits := 0
	for _, c := range local {
		if c.NumQubits > maxQubits {
			maxQubits = c.NumQubits
		}
	}

	plan, err := bc.planExperiments(local, noise, cfg, dist)
	if err != nil {
		res.Status = result.StatusError
		res.Message = err.Error()
		return res
	}

	res.Metadata["omp_enabled"] = cfg.MaxParallelThreads > 1
	res.Metadata["parallel_experiments"] = plan.ParallelExperiments
	res.Metadata["max_memory_mb"] = cfg.MaxMemoryMB
	res.Metadata["num_distributed_processes"] = size
	res.Metadata["distributed_rank"] = rank
	res.Metadata["distributed_experiments"] = dist.DistributedExperiments
	res.Metadata["group_id"] = dist.GroupID
	res.Metadata["rank_in_group"] = dist.RankInGroup
	res.Metadata["max_qubits"] = maxQubits
	if plan.Nested {
		res.Metadata["omp_nested"] = true
	}

	if plan.ParallelExperiments > 1 {
		bc.runParallel(rnr, local, noise, cfg, rawConfig, plan, dist, res)
	} else {
		bc.runSequential(rnr, local, noise, cfg, rawConfig, plan, dist, res)
	}

	reduceStatus(res)
	return res
}

// resolveThreadBudget fills in MaxParallelThreads from the host's logical
// CPU count when the job left it at 0 ("platform default").
func (bc *Controller) resolveThreadBudget(cfg circuitmodel.ParallelismConfig) circuitmodel.ParallelismConfig {
	if cfg.MaxParallelThreads > 0 {
		return cfg
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		cfg.MaxParallelThreads = n
	} else {
		cfg.MaxParallelThreads = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxParallelThreads < 1 {
		cfg.MaxParallelThreads = 1
	}
	return cfg
}

// resolveMemoryBudget fills in MaxMemoryMB with half of the host's
// detected physical memory (MIN-reduced across every rank) when the job
// left it at 0 ("half of detected physical memory").
func (bc *Controller) resolveMemoryBudget(cfg circuitmodel.ParallelismConfig) circuitmodel.ParallelismConfig {
	if cfg.MaxMemoryMB > 0 {
		return cfg
	}
	hostMB, err := bc.mem.HostMemoryMB()
	if err != nil || hostMB <= 0 {
		bc.Log.Warn().Err(err).Msg("failed to probe host memory, leaving max_memory_mb unbounded")
		return cfg
	}
	cfg.MaxMemoryMB = hostMB / 2
	return cfg
}

func (bc *Controller) validateLocal(local []*circuitmodel.Circuit, noise *circuitmodel.NoiseModel, numProcessPerExperiment int, maxMemoryMB int64) error {
	for _, c := range local {
		if err := validator.ValidateOpSet(bc.Backend, c, noise); err != nil {
			return err
		}
		if err := validator.ValidateMemory(bc.Backend, c, noise, numProcessPerExperiment, maxMemoryMB); err != nil {
			return err
		}
	}
	return nil
}

func (bc *Controller) planExperiments(local []*circuitmodel.Circuit, noise *circuitmodel.NoiseModel, cfg circuitmodel.ParallelismConfig, dist distribution.State) (parallelism.ExperimentPlan, error) {
	if explicitExperiments, _, _, ok := cfg.ExplicitOverrides(); ok {
		return parallelism.ExperimentPlan{ParallelExperiments: explicitExperiments}, nil
	}

	rnr := &runner.Runner{Backend: bc.Backend}
	return parallelism.PlanExperiments(
		local, noise, rnr.RequiredMemoryMB,
		cfg.MaxParallelExperiments, cfg.MaxParallelThreads, cfg.MaxMemoryMB,
		dist.NumProcessPerExperiment, bc.Fabric.Size(),
	)
}

// runSequential processes local experiments in index order, one at a
// time. This path is distinct from runParallel by design: it carries no
// parallel-region overhead even when plan.ParallelExperiments's guard
// would otherwise bypass it.
func (bc *Controller) runSequential(rnr *runner.Runner, local []*circuitmodel.Circuit, noise *circuitmodel.NoiseModel, cfg circuitmodel.ParallelismConfig, rawConfig map[string]any, plan parallelism.ExperimentPlan, dist distribution.State, res *result.Result) {
	for i, c := range local {
		res.Results[i] = bc.runOne(rnr, c, noise, cfg, rawConfig, plan, dist)
	}
}

// runParallel processes local experiments with exactly
// plan.ParallelExperiments worker goroutines, each cloning the noise
// model privately before use.
func (bc *Controller) runParallel(rnr *runner.Runner, local []*circuitmodel.Circuit, noise *circuitmodel.NoiseModel, cfg circuitmodel.ParallelismConfig, rawConfig map[string]any, plan parallelism.ExperimentPlan, dist distribution.State, res *result.Result) {
	bc.mu.Lock()
	previous := bc.nesting.Set(plan.Nested)
	bc.mu.Unlock()
	defer func() {
		bc.mu.Lock()
		bc.nesting.Set(previous)
		bc.mu.Unlock()
	}()

	workerpool.Run(plan.ParallelExperiments, len(local), func(i int) error {
		res.Results[i] = bc.runOne(rnr, local[i], noise, cfg, rawConfig, plan, dist)
		return nil
	})
}

// runOne drives one experiment through the CircuitRunner, which clones
// noise privately before any back-end invocation.
func (bc *Controller) runOne(rnr *runner.Runner, c *circuitmodel.Circuit, noise *circuitmodel.NoiseModel, cfg circuitmodel.ParallelismConfig, rawConfig map[string]any, plan parallelism.ExperimentPlan, dist distribution.State) *result.ExperimentResult {
	res, err := rnr.Run(c, noise, rawConfig, cfg, plan.ParallelExperiments, dist)
	if err != nil {
		errRes := result.NewExperimentResult()
		errRes.Status = result.StatusError
		errRes.Message = err.Error()
		return errRes
	}
	return res
}

func reduceStatus(res *result.Result) {
	completed, errored := 0, 0
	var message string
	for i, r := range res.Results {
		if r == nil {
			continue
		}
		switch r.Status {
		case result.StatusCompleted:
			completed++
		default:
			errored++
			message += fmt.Sprintf(" [Experiment %d] %s", i, r.Message)
		}
	}

	switch {
	case errored == 0:
		res.Status = result.StatusCompleted
	case completed == 0:
		res.Status = result.StatusError
		res.Message = message
	default:
		res.Status = result.StatusPartialCompleted
		res.Message = message
	}
}
