package smoke

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/zeebo/xxh3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"gpucheck/internal/accel"
	"gpucheck/internal/logging"
	"gpucheck/internal/preflight"
)

var errNonFinite = errors.New("result contains non-finite values")

// Loader opens the accelerator runtime. A returned error means the library
// could not be loaded.
type Loader func() (accel.Runtime, error)

// Runner executes the check sequence and reports pass/fail
type Runner struct {
	load   Loader
	out    *printer
	logger *logging.Logger
	opts   Options
	probe  func(backend string) []preflight.Finding
	now    func() time.Time
}

// NewRunner creates a runner writing diagnostic text to out
func NewRunner(load Loader, out io.Writer, opts Options, logger *logging.Logger) *Runner {
	return &Runner{
		load:   load,
		out:    newPrinter(out),
		logger: logger,
		opts:   opts,
		probe:  preflight.Probe,
		now:    time.Now,
	}
}

// Run performs stages A to E in order. The first failing stage ends the run;
// the returned report carries the exit code.
func (r *Runner) Run() *Report {
	report := &Report{
		Timestamp: r.now().UTC().Format(time.RFC3339),
		Devices:   []accel.DeviceProperties{},
	}

	r.out.header()

	rt, ok := r.checkRuntime(report)
	if !ok {
		return report
	}
	defer r.closeRuntime(rt)

	if !r.checkAvailability(rt, report) {
		return report
	}
	if !r.enumerateDevices(rt, report) {
		return report
	}
	if !r.computeTest(rt, report) {
		return report
	}

	r.out.summary()
	report.ExitCode = ExitOK
	r.logger.Info("smoke.passed", "All checks passed", map[string]interface{}{
		"backend": report.Backend,
		"devices": len(report.Devices),
	})
	return report
}

func (r *Runner) fail(report *Report, stage Stage, err error) bool {
	report.FailedStage = stage
	report.Error = err.Error()
	report.ExitCode = ExitFailure
	r.logger.Error("smoke.stage.failed", "Check failed", map[string]interface{}{
		"stage": string(stage),
		"error": err.Error(),
	})
	return false
}

// checkRuntime is stage A
func (r *Runner) checkRuntime(report *Report) (accel.Runtime, bool) {
	rt, err := r.load()
	if err != nil {
		r.out.runtimeMissing()
		return nil, r.fail(report, StageRuntime, err)
	}

	report.Backend = rt.Backend()
	report.Library = rt.Library()
	report.Version = rt.Version()

	r.out.runtimeOK(report.Library, report.Version)
	r.logger.Info("smoke.runtime.ok", "Accelerator runtime loaded", map[string]interface{}{
		"backend": report.Backend,
		"library": report.Library,
		"version": report.Version,
	})
	return rt, true
}

// checkAvailability is stage B
func (r *Runner) checkAvailability(rt accel.Runtime, report *Report) bool {
	report.Available = rt.Available()
	if !report.Available {
		return r.failAvailability(rt, report, accel.ErrNoDevice)
	}

	count, err := rt.DeviceCount()
	if err != nil {
		report.Available = false
		return r.failAvailability(rt, report, fmt.Errorf("%w: %v", accel.ErrNoDevice, err))
	}
	if count < 1 {
		report.Available = false
		return r.failAvailability(rt, report, accel.ErrNoDevice)
	}

	r.out.available(rt.Backend(), count)
	return true
}

// failAvailability prints the likely causes and records the container probe findings
func (r *Runner) failAvailability(rt accel.Runtime, report *Report, err error) bool {
	r.out.noDevice()
	report.Preflight = r.probe(rt.Backend())
	for _, f := range preflight.Failed(report.Preflight) {
		r.logger.Warn("smoke.preflight.failed", "Container check failed", map[string]interface{}{
			"check":  f.Check,
			"path":   f.Path,
			"detail": f.Detail,
		})
	}
	return r.fail(report, StageAvailability, err)
}

// enumerateDevices is stage C
func (r *Runner) enumerateDevices(rt accel.Runtime, report *Report) bool {
	count, err := rt.DeviceCount()
	if err != nil {
		return r.fail(report, StageEnumerate, err)
	}

	r.out.devicesHeader()

	for i := 0; i < count; i++ {
		props, err := r.deviceProperties(rt, i)
		if err != nil {
			r.out.deviceFailed(i, err)
			return r.fail(report, StageEnumerate, err)
		}
		report.Devices = append(report.Devices, props)
		r.out.device(props)
	}
	return true
}

func (r *Runner) deviceProperties(rt accel.Runtime, index int) (accel.DeviceProperties, error) {
	name, err := rt.DeviceName(index)
	if err != nil {
		return accel.DeviceProperties{}, err
	}
	props, err := rt.DeviceProperties(index)
	if err != nil {
		return accel.DeviceProperties{}, err
	}
	props.Index = index
	props.Name = name
	return props, nil
}

// computeTest is stage D
func (r *Runner) computeTest(rt accel.Runtime, report *Report) bool {
	r.out.computeHeader()

	result, err := r.runCompute(rt)
	if err != nil {
		r.out.computeFailed(err)
		return r.fail(report, StageCompute, err)
	}
	report.Compute = result

	r.out.computeOK(result.Size, result.Size, result.Sum)
	if result.MaxAbsError != nil {
		r.out.verified(*result.MaxAbsError)
	}

	r.logger.Info("smoke.compute.ok", "Matrix multiplication completed", map[string]interface{}{
		"size":        result.Size,
		"duration_ms": result.DurationMS,
		"fingerprint": result.Fingerprint,
	})
	return true
}

// runCompute allocates two random matrices on the device, multiplies them,
// waits for the device and reads the product back. A panic inside the
// backend is reported as an ordinary failure.
func (r *Runner) runCompute(rt accel.Runtime) (result *ComputeResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("%v", p)
		}
	}()

	n := r.opts.MatrixSize
	start := r.now()

	x, err := rt.RandN(n, n, r.opts.Seed)
	if err != nil {
		return nil, err
	}
	defer r.free(x)

	y, err := rt.RandN(n, n, r.opts.Seed+1)
	if err != nil {
		return nil, err
	}
	defer r.free(y)

	z, err := rt.MatMul(x, y)
	if err != nil {
		return nil, err
	}
	defer r.free(z)

	if err := rt.Synchronize(); err != nil {
		return nil, err
	}

	product, err := z.CopyToHost()
	if err != nil {
		return nil, err
	}

	sum := floats.Sum(widen(product))
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, errNonFinite
	}

	result = &ComputeResult{
		Size:        n,
		Seed:        r.opts.Seed,
		Sum:         sum,
		DurationMS:  float64(r.now().Sub(start).Microseconds()) / 1000,
		Fingerprint: fingerprint(product),
	}

	if r.opts.Verify {
		maxErr, err := verifyOnHost(x, y, product)
		if err != nil {
			return nil, err
		}
		if maxErr > r.opts.Tolerance {
			return nil, fmt.Errorf("host verification: max error %.3e exceeds tolerance %.3e", maxErr, r.opts.Tolerance)
		}
		result.MaxAbsError = &maxErr
	}

	return result, nil
}

func (r *Runner) free(t accel.Tensor) {
	if err := t.Free(); err != nil {
		r.logger.Warn("smoke.tensor.free.failed", "Failed to free device tensor", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (r *Runner) closeRuntime(rt accel.Runtime) {
	if err := rt.Close(); err != nil {
		r.logger.Warn("smoke.runtime.close.failed", "Failed to close runtime", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// verifyOnHost recomputes x*y with gonum and returns the largest absolute
// difference to the device product.
func verifyOnHost(x, y accel.Tensor, product []float32) (float64, error) {
	hx, err := x.CopyToHost()
	if err != nil {
		return 0, err
	}
	hy, err := y.CopyToHost()
	if err != nil {
		return 0, err
	}
	if len(product) != x.Rows()*y.Cols() {
		return 0, errors.New("host verification: product has unexpected length")
	}

	var want mat.Dense
	want.Mul(
		mat.NewDense(x.Rows(), x.Cols(), widen(hx)),
		mat.NewDense(y.Rows(), y.Cols(), widen(hy)),
	)

	got := mat.NewDense(x.Rows(), y.Cols(), widen(product))
	var diff mat.Dense
	diff.Sub(&want, got)

	maxErr := 0.0
	for _, v := range diff.RawMatrix().Data {
		maxErr = math.Max(maxErr, math.Abs(v))
	}
	return maxErr, nil
}

func widen(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// fingerprint hashes the exact bit pattern of the product so runs with the
// same seed on the same device can be compared.
func fingerprint(values []float32) string {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return fmt.Sprintf("%016x", xxh3.Hash(buf))
}
