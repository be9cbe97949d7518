package config

// Config represents the complete gpucheck configuration
type Config struct {
	Backend string        `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`
	Compute ComputeConfig `yaml:"compute"`
	Report  ReportConfig  `yaml:"report"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ComputeConfig controls the matrix-multiplication smoke test
type ComputeConfig struct {
	MatrixSize int     `yaml:"matrix_size"`
	Seed       uint64  `yaml:"seed"`
	Verify     bool    `yaml:"verify"`
	Tolerance  float64 `yaml:"tolerance"`
}

// ReportConfig controls the optional JSON run report.
// A path ending in ".zst" is written zstd-compressed.
type ReportConfig struct {
	Path string `yaml:"path"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}
