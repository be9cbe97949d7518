package accel

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"runtime/debug"

	"gonum.org/v1/gonum/mat"

	"gpucheck/internal/logging"
)

const gonumModule = "gonum.org/v1/gonum"

func init() {
	register("host", openHost)
}

// hostRuntime runs the smoke test on the CPU with gonum. It exists so the
// check pipeline can be exercised on machines without a GPU and is only
// used when requested explicitly.
type hostRuntime struct {
	logger *logging.Logger
}

// NewHostRuntime returns the CPU reference runtime
func NewHostRuntime(logger *logging.Logger) Runtime {
	return &hostRuntime{logger: logger}
}

func openHost(logger *logging.Logger) (Runtime, error) {
	logger.Info("accel.host.open", "Using host CPU reference backend", map[string]interface{}{
		"threads": runtime.NumCPU(),
	})
	return NewHostRuntime(logger), nil
}

func (h *hostRuntime) Backend() string { return "host" }

func (h *hostRuntime) Library() string { return "gonum" }

// Version reports the gonum module version linked into the binary
func (h *hostRuntime) Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(unknown)"
	}
	for _, dep := range info.Deps {
		if dep.Path == gonumModule {
			return dep.Version
		}
	}
	return "(devel)"
}

func (h *hostRuntime) Available() bool { return true }

func (h *hostRuntime) DeviceCount() (int, error) { return 1, nil }

func (h *hostRuntime) DeviceName(index int) (string, error) {
	if err := checkIndex(index, 1); err != nil {
		return "", err
	}
	return hostDeviceName(runtime.NumCPU()), nil
}

func hostDeviceName(threads int) string {
	if threads == 1 {
		return "Host CPU (1 thread)"
	}
	return fmt.Sprintf("Host CPU (%d threads)", threads)
}

func (h *hostRuntime) DeviceProperties(index int) (DeviceProperties, error) {
	name, err := h.DeviceName(index)
	if err != nil {
		return DeviceProperties{}, err
	}
	return DeviceProperties{
		Index:       index,
		Name:        name,
		TotalMemory: hostMemoryBytes(),
	}, nil
}

func (h *hostRuntime) RandN(rows, cols int, seed uint64) (Tensor, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShapeMismatch, rows, cols)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]float64, rows*cols)
	for i := range data {
		// Round through float32 so host and device tensors hold the same precision.
		data[i] = float64(float32(rng.NormFloat64()))
	}
	return &hostTensor{m: mat.NewDense(rows, cols, data)}, nil
}

func (h *hostRuntime) MatMul(a, b Tensor) (Tensor, error) {
	ha, ok := a.(*hostTensor)
	if !ok {
		return nil, ErrForeignTensor
	}
	hb, ok := b.(*hostTensor)
	if !ok {
		return nil, ErrForeignTensor
	}
	if err := checkMatMulShapes(a, b); err != nil {
		return nil, err
	}

	var c mat.Dense
	c.Mul(ha.m, hb.m)
	return &hostTensor{m: &c}, nil
}

// Synchronize is a no-op: gonum runs synchronously on the calling goroutine.
func (h *hostRuntime) Synchronize() error { return nil }

func (h *hostRuntime) Close() error { return nil }

type hostTensor struct {
	m *mat.Dense
}

func (t *hostTensor) Rows() int {
	r, _ := t.m.Dims()
	return r
}

func (t *hostTensor) Cols() int {
	_, c := t.m.Dims()
	return c
}

func (t *hostTensor) CopyToHost() ([]float32, error) {
	raw := t.m.RawMatrix()
	out := make([]float32, 0, raw.Rows*raw.Cols)
	for r := 0; r < raw.Rows; r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+raw.Cols]
		for _, v := range row {
			out = append(out, float32(v))
		}
	}
	return out, nil
}

func (t *hostTensor) Free() error { return nil }
