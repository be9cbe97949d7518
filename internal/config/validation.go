package config

import (
	"fmt"
	"slices"
)

// MaxMatrixSize bounds compute.matrix_size so a misconfigured run cannot exhaust device memory.
const MaxMatrixSize = 8192

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateCompute()...)

	return errors
}

func (c *Config) validateBackend() []ValidationError {
	validBackends := []string{BackendAuto, BackendCUDA, BackendROCm, BackendHost}
	if slices.Contains(validBackends, c.Backend) {
		return nil
	}

	return []ValidationError{{
		Path:    "backend",
		Message: fmt.Sprintf("must be one of %v, got '%s'", validBackends, c.Backend),
	}}
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.Logging.Level) {
		errors = append(errors, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
		})
	}

	validFormats := []string{"json", "text"}
	if !slices.Contains(validFormats, c.Logging.Format) {
		errors = append(errors, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validFormats, c.Logging.Format),
		})
	}

	return errors
}

func (c *Config) validateCompute() []ValidationError {
	var errors []ValidationError

	if c.Compute.MatrixSize < 1 || c.Compute.MatrixSize > MaxMatrixSize {
		errors = append(errors, ValidationError{
			Path:    "compute.matrix_size",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxMatrixSize, c.Compute.MatrixSize),
		})
	}

	if c.Compute.Tolerance <= 0 {
		errors = append(errors, ValidationError{
			Path:    "compute.tolerance",
			Message: fmt.Sprintf("must be positive, got %g", c.Compute.Tolerance),
		})
	}

	return errors
}
