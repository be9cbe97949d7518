package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gpucheck/internal/accel"
	"gpucheck/internal/config"
	"gpucheck/internal/logging"
	"gpucheck/internal/smoke"
)

type rootOptions struct {
	configPath string
	backend    string
	logLevel   string
	reportPath string
	verify     bool
}

func newRootCmd(stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gpucheck",
		Short: "Smoke test for GPU access inside a container",
		Long: `gpucheck verifies that an accelerator runtime is loadable, that at least
one GPU is visible, lists device properties and runs a matrix multiplication
on the device. It exits 0 when every check passes and 1 otherwise.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := runCheck(cmd, opts, stdout, stderr)
			*exitCode = code
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file (none is read by default)")
	flags.StringVar(&opts.backend, "backend", "", "Accelerator backend: auto, cuda, rocm or host")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.reportPath, "save-report", "", "Write a JSON run report to this path (.zst compresses)")
	flags.BoolVar(&opts.verify, "verify", false, "Recompute the product on the host and compare")

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.AddCommand(newVersionCmd(stdout), newInspectCmd(stdout))

	return cmd
}

// loadConfig merges the config file with explicitly set flags
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = opts.backend
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("save-report") {
		cfg.Report.Path = opts.reportPath
	}
	if flags.Changed("verify") {
		cfg.Compute.Verify = opts.verify
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid option: %w", errs[0])
	}
	return cfg, nil
}

func newLogger(cfg config.Config, stderr io.Writer) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelWarn
	}
	return logging.NewLoggerWithWriter(level, logging.Format(cfg.Logging.Format), stderr)
}

func runCheck(cmd *cobra.Command, opts *rootOptions, stdout, stderr io.Writer) (int, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return smoke.ExitFailure, err
	}

	logger := newLogger(cfg, stderr)
	logger.Debug("gpucheck.start", "Starting GPU smoke test", map[string]interface{}{
		"backend":  cfg.Backend,
		"compiled": accel.Backends(),
		"size":     cfg.Compute.MatrixSize,
	})

	load := func() (accel.Runtime, error) {
		return accel.Open(cfg.Backend, logger)
	}
	runner := smoke.NewRunner(load, stdout, smoke.Options{
		MatrixSize: cfg.Compute.MatrixSize,
		Seed:       cfg.Compute.Seed,
		Verify:     cfg.Compute.Verify,
		Tolerance:  cfg.Compute.Tolerance,
	}, logger)

	report := runner.Run()

	// The exit code reflects the checks only; a report that cannot be written is logged.
	if cfg.Report.Path != "" {
		if err := smoke.SaveReport(report, cfg.Report.Path, logger); err != nil {
			logger.Error("gpucheck.report.failed", "Failed to save report", map[string]interface{}{
				"path":  cfg.Report.Path,
				"error": err.Error(),
			})
		}
	}

	return report.ExitCode, nil
}
