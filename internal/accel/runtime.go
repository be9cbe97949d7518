package accel

import (
	"errors"
	"fmt"
	"sort"

	"gpucheck/internal/logging"
)

// Runtime is the accelerator library surface the smoke test consumes
type Runtime interface {
	// Backend is the short backend identifier ("cuda", "rocm", "host").
	Backend() string
	// Library names the loaded runtime library, e.g. "CUDA driver".
	Library() string
	Version() string
	// Available reports whether at least one usable device is visible.
	Available() bool
	DeviceCount() (int, error)
	DeviceName(index int) (string, error)
	DeviceProperties(index int) (DeviceProperties, error)
	// RandN allocates a rows x cols matrix of standard normal samples on the device.
	RandN(rows, cols int, seed uint64) (Tensor, error)
	// MatMul enqueues a * b on the device. Work may complete asynchronously.
	MatMul(a, b Tensor) (Tensor, error)
	// Synchronize blocks until all queued device work has completed.
	Synchronize() error
	Close() error
}

// Tensor is a device-resident row-major float32 matrix
type Tensor interface {
	Rows() int
	Cols() int
	CopyToHost() ([]float32, error)
	Free() error
}

type opener func(logger *logging.Logger) (Runtime, error)

var backends = map[string]opener{}

// autoOrder is the probe order for "auto"; host is never probed.
var autoOrder = []string{"rocm", "cuda"}

func register(name string, open opener) {
	backends[name] = open
}

// Backends lists the backends compiled into this binary
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open loads the named backend. "auto" (or "") probes the GPU backends in
// autoOrder and returns the first one with a visible device, falling back to
// the first one that loaded at all.
func Open(name string, logger *logging.Logger) (Runtime, error) {
	if name == "" || name == "auto" {
		return openAuto(logger)
	}

	open, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: backend %q not compiled in (available: %v)", ErrLibraryNotFound, name, Backends())
	}
	return open(logger)
}

func openAuto(logger *logging.Logger) (Runtime, error) {
	var (
		errs     []error
		fallback Runtime
	)

	for _, name := range autoOrder {
		open, ok := backends[name]
		if !ok {
			continue
		}

		rt, err := open(logger)
		if err != nil {
			logger.Info("accel.auto.skip", "Backend failed to load", map[string]interface{}{
				"backend": name,
				"error":   err.Error(),
			})
			errs = append(errs, err)
			continue
		}

		if rt.Available() {
			if fallback != nil {
				closeRuntime(fallback, logger)
			}
			return rt, nil
		}

		logger.Info("accel.auto.no_device", "Backend loaded without visible devices", map[string]interface{}{
			"backend": name,
		})
		if fallback == nil {
			fallback = rt
		} else {
			closeRuntime(rt, logger)
		}
	}

	if fallback != nil {
		return fallback, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no GPU backend compiled in, rebuild with -tags cuda or -tags rocm", ErrLibraryNotFound)
	}
	return nil, errors.Join(errs...)
}

func closeRuntime(rt Runtime, logger *logging.Logger) {
	if err := rt.Close(); err != nil {
		logger.Warn("accel.close.failed", "Failed to close runtime", map[string]interface{}{
			"backend": rt.Backend(),
			"error":   err.Error(),
		})
	}
}
