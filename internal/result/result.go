// Package result holds the output containers the controller assembles:
// one ExperimentResult per experiment, and the batch-level Result.
package result

import (
	"gonum.org/v1/gonum/floats"
)

// Status is the outcome of a single experiment or of the whole batch.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusPartialCompleted Status = "partial_completed"
	StatusError            Status = "error"
)

// Config records which data channels the caller requested. Combine skips
// merging a channel the caller did not ask for.
type Config struct {
	Counts    bool
	Snapshots bool
	Memory    bool
	Register  bool
}

// DefaultConfig matches the back-end interface's documented defaults:
// counts and snapshots on, memory and register off.
func DefaultConfig() Config {
	return Config{Counts: true, Snapshots: true}
}

// ExperimentResult is the merged outcome of one experiment on this
// process: a counts histogram, optional snapshot/memory/register
// channels, the shots actually executed here, the seed used, and
// metadata.
type ExperimentResult struct {
	Status    Status               `json:"status" msgpack:"status"`
	Counts    map[string]float64   `json:"counts,omitempty" msgpack:"counts,omitempty"`
	Snapshots map[string][]float64 `json:"snapshots,omitempty" msgpack:"snapshots,omitempty"`
	Memory    []float64            `json:"memory,omitempty" msgpack:"memory,omitempty"`
	Register  []float64            `json:"register,omitempty" msgpack:"register,omitempty"`
	Shots     int                  `json:"shots" msgpack:"shots"`
	Seed      int64                `json:"seed" msgpack:"seed"`
	Metadata  map[string]any       `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	Message   string               `json:"message,omitempty" msgpack:"message,omitempty"`
	config    Config
}

// NewExperimentResult returns an empty result ready to be populated by a
// back-end invocation or merged via Combine.
func NewExperimentResult() *ExperimentResult {
	return &ExperimentResult{
		Counts:   make(map[string]float64),
		Snapshots: make(map[string][]float64),
		Metadata: make(map[string]any),
		config:   DefaultConfig(),
	}
}

// SetConfig records which channels the caller requested.
func (r *ExperimentResult) SetConfig(c Config) { r.config = c }

// ConfigFromMap derives which channels Combine should merge from the
// job's raw configuration map (§6 channel keys): counts and snapshots
// default true, memory and register default false, each overridable by
// a bool value under its own key.
func ConfigFromMap(config map[string]any) Config {
	c := DefaultConfig()
	if config == nil {
		return c
	}
	if v, ok := config["counts"].(bool); ok {
		c.Counts = v
	}
	if v, ok := config["snapshots"].(bool); ok {
		c.Snapshots = v
	}
	if v, ok := config["memory"].(bool); ok {
		c.Memory = v
	}
	if v, ok := config["register"].(bool); ok {
		c.Register = v
	}
	return c
}

// Combine merges other into r, destructively consuming other so no
// bucket payload outlives the merge. Counts are summed per key and
// snapshot vectors are summed element-wise; memory and register entries
// are appended after r's own. The merged counts and snapshots are the
// same for any merge order; the order of memory and register entries
// follows the merge order.
func (r *ExperimentResult) Combine(other *ExperimentResult) {
	if other == nil {
		return
	}
	if r.config.Counts {
		for k, v := range other.Counts {
			r.Counts[k] += v
		}
	}
	if r.config.Snapshots {
		for k, v := range other.Snapshots {
			r.Snapshots[k] = addVectors(r.Snapshots[k], v)
		}
	}
	if r.config.Memory {
		r.Memory = append(r.Memory, other.Memory...)
	}
	if r.config.Register {
		r.Register = append(r.Register, other.Register...)
	}
	r.Shots += other.Shots
	other.Counts = nil
	other.Snapshots = nil
	other.Memory = nil
	other.Register = nil
}

// addVectors sums two equal-length (or zero-length) float slices
// element-wise using gonum's floats helpers.
func addVectors(a, b []float64) []float64 {
	switch {
	case len(a) == 0:
		return append([]float64(nil), b...)
	case len(b) == 0:
		return a
	}
	out := append([]float64(nil), a...)
	floats.Add(out, b)
	return out
}

// Result is the batch-level outcome: one ExperimentResult per local
// experiment, in input order, plus status/metadata/message.
type Result struct {
	Status   Status              `json:"status" msgpack:"status"`
	Results  []*ExperimentResult `json:"results" msgpack:"results"`
	Metadata map[string]any      `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	JobID    string              `json:"qobj_id,omitempty" msgpack:"qobj_id,omitempty"`
	Header   []byte              `json:"header,omitempty" msgpack:"header,omitempty"`
	Message  string              `json:"message,omitempty" msgpack:"message,omitempty"`
}

// NewResult allocates a Result sized to hold n local experiment slots.
func NewResult(n int) *Result {
	return &Result{
		Results:  make([]*ExperimentResult, n),
		Metadata: make(map[string]any),
	}
}
