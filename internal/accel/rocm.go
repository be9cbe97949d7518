//go:build rocm

package accel

/*
#cgo CFLAGS: -D__HIP_PLATFORM_AMD__ -I/opt/rocm/include
#cgo LDFLAGS: -L/opt/rocm/lib -lamdhip64 -lhipblas -lhiprand
#include <stddef.h>
#include <string.h>
#include <hip/hip_runtime_api.h>
#include <hipblas/hipblas.h>
#include <hiprand/hiprand.h>

typedef struct {
    char name[256];
    char arch[256];
    size_t total_mem;
    int major;
    int minor;
} rocm_props;

static const char* hip_err(hipError_t e) {
    return e == hipSuccess ? NULL : hipGetErrorString(e);
}

static const char* rocm_init(void) {
    return hip_err(hipInit(0));
}

static const char* rocm_runtime_version(int* v) {
    return hip_err(hipRuntimeGetVersion(v));
}

// hipErrorNoDevice is reported as zero devices rather than an error.
static const char* rocm_device_count(int* n) {
    hipError_t e = hipGetDeviceCount(n);
    if (e == hipErrorNoDevice) {
        *n = 0;
        return NULL;
    }
    return hip_err(e);
}

static const char* rocm_device_props(int i, rocm_props* out) {
    hipDeviceProp_t p;
    hipError_t e = hipGetDeviceProperties(&p, i);
    if (e != hipSuccess) return hipGetErrorString(e);
    strncpy(out->name, p.name, sizeof(out->name) - 1);
    out->name[sizeof(out->name) - 1] = 0;
    strncpy(out->arch, p.gcnArchName, sizeof(out->arch) - 1);
    out->arch[sizeof(out->arch) - 1] = 0;
    out->total_mem = p.totalGlobalMem;
    out->major = p.major;
    out->minor = p.minor;
    return NULL;
}

static const char* rocm_set_device(int d) {
    return hip_err(hipSetDevice(d));
}

static const char* rocm_alloc(float** p, size_t n) {
    return hip_err(hipMalloc((void**)p, n * sizeof(float)));
}

static const char* rocm_free(float* p) {
    return hip_err(hipFree(p));
}

// hipRAND shares cuRAND's requirement that n be even.
static const char* rocm_randn(float* p, size_t n, unsigned long long seed) {
    hiprandGenerator_t gen;
    if (hiprandCreateGenerator(&gen, HIPRAND_RNG_PSEUDO_DEFAULT) != HIPRAND_STATUS_SUCCESS)
        return "hiprandCreateGenerator failed";
    if (hiprandSetPseudoRandomGeneratorSeed(gen, seed) != HIPRAND_STATUS_SUCCESS) {
        hiprandDestroyGenerator(gen);
        return "hiprandSetPseudoRandomGeneratorSeed failed";
    }
    hiprandStatus_t st = hiprandGenerateNormal(gen, p, n, 0.0f, 1.0f);
    hiprandDestroyGenerator(gen);
    return st == HIPRAND_STATUS_SUCCESS ? NULL : "hiprandGenerateNormal failed";
}

static const char* rocm_blas_create(hipblasHandle_t* h) {
    return hipblasCreate(h) == HIPBLAS_STATUS_SUCCESS ? NULL : "hipblasCreate failed";
}

static void rocm_blas_destroy(hipblasHandle_t h) {
    hipblasDestroy(h);
}

// Row-major c = a * b computed as column-major c^T = b^T * a^T.
static const char* rocm_sgemm(hipblasHandle_t h, const float* a, const float* b, float* c, int m, int n, int k) {
    const float alpha = 1.0f, beta = 0.0f;
    hipblasStatus_t st = hipblasSgemm(h, HIPBLAS_OP_N, HIPBLAS_OP_N, n, m, k, &alpha, b, n, a, k, &beta, c, n);
    return st == HIPBLAS_STATUS_SUCCESS ? NULL : "hipblasSgemm failed";
}

static const char* rocm_sync(void) {
    return hip_err(hipDeviceSynchronize());
}

static const char* rocm_copy_to_host(float* dst, const float* src, size_t n) {
    return hip_err(hipMemcpy(dst, src, n * sizeof(float), hipMemcpyDeviceToHost));
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"gpucheck/internal/logging"
)

func init() {
	register("rocm", openROCm)
}

func hipCheck(msg *C.char) error {
	if msg == nil {
		return nil
	}
	return errors.New(C.GoString(msg))
}

type rocmRuntime struct {
	logger    *logging.Logger
	version   string
	devices   []DeviceProperties
	blas      C.hipblasHandle_t
	blasReady bool
}

func openROCm(logger *logging.Logger) (Runtime, error) {
	rt := &rocmRuntime{logger: logger}

	var v C.int
	if err := hipCheck(C.rocm_runtime_version(&v)); err != nil {
		return nil, fmt.Errorf("%w: HIP runtime: %v", ErrLibraryNotFound, err)
	}
	rt.version = formatHIPVersion(int(v))

	// hipInit fails when /dev/kfd is missing; that is a device problem, not a library one.
	if err := hipCheck(C.rocm_init()); err != nil {
		logger.Warn("accel.rocm.init.failed", "HIP initialization failed", map[string]interface{}{
			"error": err.Error(),
		})
		return rt, nil
	}

	var count C.int
	if err := hipCheck(C.rocm_device_count(&count)); err != nil {
		logger.Warn("accel.rocm.device.count.failed", "Failed to get GPU count", map[string]interface{}{
			"error": err.Error(),
		})
		return rt, nil
	}

	for i := 0; i < int(count); i++ {
		var p C.rocm_props
		if err := hipCheck(C.rocm_device_props(C.int(i), &p)); err != nil {
			return nil, fmt.Errorf("failed to get properties of device %d: %w", i, err)
		}
		props := DeviceProperties{
			Index:       i,
			Name:        C.GoString(&p.name[0]),
			TotalMemory: uint64(p.total_mem),
			Major:       int(p.major),
			Minor:       int(p.minor),
		}
		rt.devices = append(rt.devices, props)

		logger.Info("accel.rocm.device.detected", "GPU device detected", map[string]interface{}{
			"index":   i,
			"name":    props.Name,
			"arch":    C.GoString(&p.arch[0]),
			"compute": props.ComputeCapability(),
		})
	}

	logger.Info("accel.rocm.open", "ROCm backend loaded", map[string]interface{}{
		"hip_version": rt.version,
		"devices":     len(rt.devices),
	})

	return rt, nil
}

// formatHIPVersion decodes HIP_VERSION = major*10000000 + minor*100000 + patch
func formatHIPVersion(v int) string {
	return fmt.Sprintf("%d.%d.%d", v/10000000, (v/100000)%100, v%100000)
}

func (r *rocmRuntime) Backend() string { return "rocm" }

func (r *rocmRuntime) Library() string { return "HIP runtime" }

func (r *rocmRuntime) Version() string { return r.version }

func (r *rocmRuntime) Available() bool { return len(r.devices) > 0 }

func (r *rocmRuntime) DeviceCount() (int, error) { return len(r.devices), nil }

func (r *rocmRuntime) DeviceName(index int) (string, error) {
	if err := checkIndex(index, len(r.devices)); err != nil {
		return "", err
	}
	return r.devices[index].Name, nil
}

func (r *rocmRuntime) DeviceProperties(index int) (DeviceProperties, error) {
	if err := checkIndex(index, len(r.devices)); err != nil {
		return DeviceProperties{}, err
	}
	return r.devices[index], nil
}

func (r *rocmRuntime) ensureBLAS() error {
	if r.blasReady {
		return nil
	}
	if err := hipCheck(C.rocm_set_device(0)); err != nil {
		return err
	}
	if err := hipCheck(C.rocm_blas_create(&r.blas)); err != nil {
		return err
	}
	r.blasReady = true
	return nil
}

func (r *rocmRuntime) alloc(rows, cols int) (*rocmTensor, error) {
	n := rows * cols
	capacity := n + n%2
	var ptr *C.float
	if err := hipCheck(C.rocm_alloc(&ptr, C.size_t(capacity))); err != nil {
		return nil, err
	}
	return &rocmTensor{ptr: ptr, rows: rows, cols: cols, capacity: capacity}, nil
}

func (r *rocmRuntime) RandN(rows, cols int, seed uint64) (Tensor, error) {
	if rows < 1 || cols < 1 {
		return nil, ErrShapeMismatch
	}
	if err := r.ensureBLAS(); err != nil {
		return nil, err
	}

	t, err := r.alloc(rows, cols)
	if err != nil {
		return nil, err
	}
	if err := hipCheck(C.rocm_randn(t.ptr, C.size_t(t.capacity), C.ulonglong(seed))); err != nil {
		_ = t.Free()
		return nil, err
	}
	return t, nil
}

func (r *rocmRuntime) MatMul(a, b Tensor) (Tensor, error) {
	ra, ok := a.(*rocmTensor)
	if !ok {
		return nil, ErrForeignTensor
	}
	rb, ok := b.(*rocmTensor)
	if !ok {
		return nil, ErrForeignTensor
	}
	if err := checkMatMulShapes(a, b); err != nil {
		return nil, err
	}
	if err := r.ensureBLAS(); err != nil {
		return nil, err
	}

	out, err := r.alloc(ra.rows, rb.cols)
	if err != nil {
		return nil, err
	}
	if err := hipCheck(C.rocm_sgemm(r.blas, ra.ptr, rb.ptr, out.ptr, C.int(ra.rows), C.int(rb.cols), C.int(ra.cols))); err != nil {
		_ = out.Free()
		return nil, err
	}
	return out, nil
}

func (r *rocmRuntime) Synchronize() error {
	return hipCheck(C.rocm_sync())
}

func (r *rocmRuntime) Close() error {
	if r.blasReady {
		C.rocm_blas_destroy(r.blas)
		r.blasReady = false
	}
	return nil
}

type rocmTensor struct {
	ptr      *C.float
	rows     int
	cols     int
	capacity int
}

func (t *rocmTensor) Rows() int { return t.rows }

func (t *rocmTensor) Cols() int { return t.cols }

func (t *rocmTensor) CopyToHost() ([]float32, error) {
	if t.ptr == nil {
		return nil, errors.New("tensor already freed")
	}
	out := make([]float32, t.rows*t.cols)
	if err := hipCheck(C.rocm_copy_to_host((*C.float)(unsafe.Pointer(&out[0])), t.ptr, C.size_t(len(out)))); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *rocmTensor) Free() error {
	if t.ptr == nil {
		return nil
	}
	err := hipCheck(C.rocm_free(t.ptr))
	t.ptr = nil
	return err
}
