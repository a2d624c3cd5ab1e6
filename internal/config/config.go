// Package config decodes the job input document (§6) into the internal
// circuitmodel.Job type, and loads process-wide defaults from the
// environment the way the CLI entrypoint does.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/aristath/qcontroller/internal/circuitmodel"
)

// circuitDoc mirrors the wire shape of one circuit entry.
type circuitDoc struct {
	Ops       []string        `json:"ops"`
	NumQubits int             `json:"num_qubits"`
	Shots     int             `json:"shots"`
	Seed      int64           `json:"seed"`
	Header    json.RawMessage `json:"header"`
}

// noiseDoc mirrors the wire shape of the noise_model config key.
type noiseDoc struct {
	Ops     []string        `json:"ops"`
	Ideal   bool            `json:"is_ideal"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// configDoc mirrors the recognized keys under "config" in §6.
type configDoc struct {
	NoiseModel               *noiseDoc `json:"noise_model,omitempty"`
	MaxParallelThreads       *int      `json:"max_parallel_threads,omitempty"`
	MaxParallelExperiments   *int      `json:"max_parallel_experiments,omitempty"`
	MaxParallelShots         *int      `json:"max_parallel_shots,omitempty"`
	MaxMemoryMB              *int64    `json:"max_memory_mb,omitempty"`
	ValidationThreshold      *float64  `json:"validation_threshold,omitempty"`
	AcceptDistributedResults *bool     `json:"accept_distributed_results,omitempty"`
	TruncateQubits           *bool     `json:"truncate_qubits,omitempty"`

	ExplicitParallelExperiments *int `json:"_parallel_experiments,omitempty"`
	ExplicitParallelShots       *int `json:"_parallel_shots,omitempty"`
	ExplicitParallelStateUpdate *int `json:"_parallel_state_update,omitempty"`
}

// jobDoc mirrors the top-level job document. Config is kept raw so it
// can be decoded twice: once into the recognized configDoc keys, once
// into a free-form map forwarded to the back-end and transpile passes.
type jobDoc struct {
	ID       string          `json:"qobj_id"`
	Header   json.RawMessage `json:"header"`
	Circuits []circuitDoc    `json:"circuits"`
	Config   json.RawMessage `json:"config"`
}

// DecodeJob parses a job document into an internal Job. It is the sole
// source of ParseError in the controller.
func DecodeJob(blob []byte) (*circuitmodel.Job, error) {
	var doc jobDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	job := &circuitmodel.Job{
		ID:     id,
		Header: doc.Header,
	}

	for _, cd := range doc.Circuits {
		job.Circuits = append(job.Circuits, &circuitmodel.Circuit{
			Ops:       cd.Ops,
			NumQubits: cd.NumQubits,
			OpSet:     circuitmodel.NewOpSet(cd.Ops...),
			Shots:     cd.Shots,
			Seed:      cd.Seed,
			Header:    cd.Header,
		})
	}

	var cfg configDoc
	if len(doc.Config) > 0 {
		if err := json.Unmarshal(doc.Config, &cfg); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(doc.Config, &raw); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		job.RawConfig = raw
	}

	if cfg.NoiseModel != nil {
		n := cfg.NoiseModel
		job.Noise = &circuitmodel.NoiseModel{
			OpSet:   circuitmodel.NewOpSet(n.Ops...),
			Ideal:   n.Ideal,
			Payload: n.Payload,
		}
	} else {
		job.Noise = &circuitmodel.NoiseModel{Ideal: true}
	}

	job.Config = parallelismConfigFromDoc(cfg)

	return job, nil
}

func parallelismConfigFromDoc(c configDoc) circuitmodel.ParallelismConfig {
	pc := circuitmodel.ParallelismConfig{
		ValidationThreshold: 1e-8,
	}
	if c.MaxParallelThreads != nil {
		pc.MaxParallelThreads = *c.MaxParallelThreads
	}
	if c.MaxParallelExperiments != nil {
		pc.MaxParallelExperiments = *c.MaxParallelExperiments
	} else {
		pc.MaxParallelExperiments = 1
	}
	if c.MaxParallelShots != nil {
		pc.MaxParallelShots = *c.MaxParallelShots
	}
	if c.MaxMemoryMB != nil {
		pc.MaxMemoryMB = *c.MaxMemoryMB
	}
	if c.ValidationThreshold != nil {
		pc.ValidationThreshold = *c.ValidationThreshold
	}
	if c.AcceptDistributedResults != nil {
		pc.AcceptDistributedResults = *c.AcceptDistributedResults
	}
	if c.TruncateQubits != nil {
		pc.TruncateQubits = *c.TruncateQubits
	}

	if c.ExplicitParallelExperiments != nil || c.ExplicitParallelShots != nil || c.ExplicitParallelStateUpdate != nil {
		pc.ExplicitParallelization = true
		if c.ExplicitParallelExperiments != nil {
			pc.ExplicitParallelExperiments = *c.ExplicitParallelExperiments
		}
		if c.ExplicitParallelShots != nil {
			pc.ExplicitParallelShots = *c.ExplicitParallelShots
		}
		if c.ExplicitParallelStateUpdate != nil {
			pc.ExplicitParallelStateUpdate = *c.ExplicitParallelStateUpdate
		}
	}

	return pc
}

// Env mirrors the subset of process environment the CLI entrypoint
// reads, following cmd/server/main.go's getEnv(key, fallback) pattern.
type Env struct {
	LogLevel string
	Pretty   bool
	HistoryDSN string
}

// LoadEnv loads a .env file if present (ignoring a missing file, the way
// godotenv.Load is conventionally used) and reads process-wide defaults.
func LoadEnv() Env {
	_ = godotenv.Load()
	return Env{
		LogLevel:   getEnv("QCONTROLLER_LOG_LEVEL", "info"),
		Pretty:     getEnv("QCONTROLLER_LOG_PRETTY", "true") == "true",
		HistoryDSN: os.Getenv("QCONTROLLER_HISTORY_DSN"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
