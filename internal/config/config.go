package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// BackendAuto selects the first GPU backend compiled into the binary that loads.
	BackendAuto = "auto"
	// BackendCUDA selects the NVIDIA backend.
	BackendCUDA = "cuda"
	// BackendROCm selects the AMD backend.
	BackendROCm = "rocm"
	// BackendHost selects the CPU reference backend.
	BackendHost = "host"
)

// DefaultConfig returns a configuration that reproduces the plain zero-argument run
func DefaultConfig() Config {
	return Config{
		Backend: BackendAuto,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
		},
		Compute: ComputeConfig{
			MatrixSize: 1000,
			Seed:       1234,
			Verify:     false,
			Tolerance:  1e-2,
		},
	}
}

// Load reads the configuration at path on top of the defaults.
// An empty path reads no file and returns DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	if err := mergeConfigFile(&cfg, path); err != nil {
		return cfg, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

// mergeConfigFile decodes a YAML file onto cfg; keys absent from the file keep their current value
func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is operator supplied
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// formatValidationErrors formats validation errors for display
func formatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	if len(errors) == 1 {
		return errors[0].Error()
	}
	result := fmt.Sprintf("%d validation errors:\n", len(errors))
	for _, err := range errors {
		result += "  - " + err.Error() + "\n"
	}
	return result
}
