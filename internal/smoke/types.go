package smoke

import (
	"gpucheck/internal/accel"
	"gpucheck/internal/preflight"
)

// Stage identifies one step of the check sequence
type Stage string

const (
	// StageRuntime loads the accelerator runtime library.
	StageRuntime Stage = "runtime"
	// StageAvailability checks that at least one device is visible.
	StageAvailability Stage = "availability"
	// StageEnumerate reads the properties of every device.
	StageEnumerate Stage = "enumerate"
	// StageCompute runs the matrix-multiplication smoke test.
	StageCompute Stage = "compute"
)

const (
	// ExitOK is returned when every stage passed.
	ExitOK = 0
	// ExitFailure is returned when any stage failed.
	ExitFailure = 1
)

// Options tunes the compute stage
type Options struct {
	MatrixSize int
	Seed       uint64
	// Verify recomputes the product on the host and compares.
	Verify    bool
	Tolerance float64
}

// DefaultOptions matches a plain zero-argument run
func DefaultOptions() Options {
	return Options{
		MatrixSize: 1000,
		Seed:       1234,
		Tolerance:  1e-2,
	}
}

// Report is the machine-readable outcome of one run
type Report struct {
	Timestamp   string                   `json:"ts"`
	Backend     string                   `json:"backend,omitempty"`
	Library     string                   `json:"library,omitempty"`
	Version     string                   `json:"version,omitempty"`
	Available   bool                     `json:"available"`
	Devices     []accel.DeviceProperties `json:"devices"`
	Compute     *ComputeResult           `json:"compute,omitempty"`
	FailedStage Stage                    `json:"failed_stage,omitempty"`
	Error       string                   `json:"error,omitempty"`
	ExitCode    int                      `json:"exit_code"`
	Preflight   []preflight.Finding      `json:"preflight,omitempty"`
	Digest      string                   `json:"digest,omitempty"`
}

// ComputeResult records the matrix-multiplication smoke test
type ComputeResult struct {
	Size        int      `json:"size"`
	Seed        uint64   `json:"seed"`
	Sum         float64  `json:"sum"`
	DurationMS  float64  `json:"duration_ms"`
	Fingerprint string   `json:"fingerprint"`
	MaxAbsError *float64 `json:"max_abs_error,omitempty"`
}

// Passed reports whether the run ended successfully
func (r *Report) Passed() bool {
	return r.ExitCode == ExitOK && r.FailedStage == ""
}
