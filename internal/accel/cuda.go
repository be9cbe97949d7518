//go:build cuda && linux && cgo

package accel

/*
#cgo LDFLAGS: -lcublas -lcurand -lcudart
#include <stddef.h>
#include <cuda_runtime.h>
#include <cublas_v2.h>
#include <curand.h>

static const char* cuda_err(cudaError_t e) {
    return e == cudaSuccess ? NULL : cudaGetErrorString(e);
}

static const char* cuda_device_count(int* n) {
    return cuda_err(cudaGetDeviceCount(n));
}

static const char* cuda_set_device(int d) {
    return cuda_err(cudaSetDevice(d));
}

static const char* cuda_alloc(float** p, size_t n) {
    return cuda_err(cudaMalloc((void**)p, n * sizeof(float)));
}

static const char* cuda_free(float* p) {
    return cuda_err(cudaFree(p));
}

// Fills n floats with N(0,1) samples. cuRAND requires n to be even.
static const char* cuda_randn(float* p, size_t n, unsigned long long seed) {
    curandGenerator_t gen;
    if (curandCreateGenerator(&gen, CURAND_RNG_PSEUDO_DEFAULT) != CURAND_STATUS_SUCCESS)
        return "curandCreateGenerator failed";
    if (curandSetPseudoRandomGeneratorSeed(gen, seed) != CURAND_STATUS_SUCCESS) {
        curandDestroyGenerator(gen);
        return "curandSetPseudoRandomGeneratorSeed failed";
    }
    curandStatus_t st = curandGenerateNormal(gen, p, n, 0.0f, 1.0f);
    curandDestroyGenerator(gen);
    return st == CURAND_STATUS_SUCCESS ? NULL : "curandGenerateNormal failed";
}

static const char* cuda_blas_create(cublasHandle_t* h) {
    return cublasCreate(h) == CUBLAS_STATUS_SUCCESS ? NULL : "cublasCreate failed";
}

static void cuda_blas_destroy(cublasHandle_t h) {
    cublasDestroy(h);
}

// c (m x n) = a (m x k) * b (k x n), row-major. cuBLAS is column-major, so
// compute c^T = b^T * a^T by swapping the operands.
static const char* cuda_sgemm(cublasHandle_t h, const float* a, const float* b, float* c, int m, int n, int k) {
    const float alpha = 1.0f, beta = 0.0f;
    cublasStatus_t st = cublasSgemm(h, CUBLAS_OP_N, CUBLAS_OP_N, n, m, k, &alpha, b, n, a, k, &beta, c, n);
    return st == CUBLAS_STATUS_SUCCESS ? NULL : "cublasSgemm failed";
}

static const char* cuda_sync(void) {
    return cuda_err(cudaDeviceSynchronize());
}

static const char* cuda_copy_to_host(float* dst, const float* src, size_t n) {
    return cuda_err(cudaMemcpy(dst, src, n * sizeof(float), cudaMemcpyDeviceToHost));
}
*/
import "C"

import (
	"errors"
	"unsafe"

	"gpucheck/internal/logging"
)

func init() {
	register("cuda", func(logger *logging.Logger) (Runtime, error) {
		rt, err := openCUDA(NewRealNVML(), logger)
		if err != nil {
			return nil, err
		}
		return rt, nil
	})
}

func cudaCheck(msg *C.char) error {
	if msg == nil {
		return nil
	}
	return errors.New(C.GoString(msg))
}

type cudaRuntime struct {
	logger      *logging.Logger
	inv         nvmlInventory
	cudaDevices int
	blas        C.cublasHandle_t
	blasReady   bool
}

func openCUDA(n NVMLInterface, logger *logging.Logger) (*cudaRuntime, error) {
	inv, err := queryNVML(n, logger)
	if err != nil {
		return nil, err
	}

	rt := &cudaRuntime{logger: logger, inv: inv}

	// NVML can see a GPU whose compute nodes (/dev/nvidia-uvm) were not passed
	// into the container; the CUDA runtime count is what decides availability.
	var count C.int
	if err := cudaCheck(C.cuda_device_count(&count)); err != nil {
		logger.Warn("accel.cuda.runtime.count.failed", "CUDA runtime reports no usable device", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		rt.cudaDevices = int(count)
	}

	logger.Info("accel.cuda.open", "CUDA backend loaded", map[string]interface{}{
		"driver_version": inv.DriverVersion,
		"cuda_version":   formatCUDAVersion(inv.CUDAVersion),
		"nvml_devices":   len(inv.Devices),
		"cuda_devices":   rt.cudaDevices,
	})

	return rt, nil
}

func (c *cudaRuntime) Backend() string { return "cuda" }

func (c *cudaRuntime) Library() string { return "CUDA driver" }

func (c *cudaRuntime) Version() string { return formatCUDAVersion(c.inv.CUDAVersion) }

func (c *cudaRuntime) Available() bool {
	return len(c.inv.Devices) > 0 && c.cudaDevices > 0
}

func (c *cudaRuntime) DeviceCount() (int, error) {
	return len(c.inv.Devices), nil
}

func (c *cudaRuntime) DeviceName(index int) (string, error) {
	if err := checkIndex(index, len(c.inv.Devices)); err != nil {
		return "", err
	}
	return c.inv.Devices[index].Name, nil
}

func (c *cudaRuntime) DeviceProperties(index int) (DeviceProperties, error) {
	if err := checkIndex(index, len(c.inv.Devices)); err != nil {
		return DeviceProperties{}, err
	}
	return c.inv.Devices[index], nil
}

func (c *cudaRuntime) ensureBLAS() error {
	if c.blasReady {
		return nil
	}
	if err := cudaCheck(C.cuda_set_device(0)); err != nil {
		return err
	}
	if err := cudaCheck(C.cuda_blas_create(&c.blas)); err != nil {
		return err
	}
	c.blasReady = true
	return nil
}

func (c *cudaRuntime) alloc(rows, cols int) (*cudaTensor, error) {
	n := rows * cols
	// Pad to an even length so cuRAND can fill the whole buffer.
	capacity := n + n%2
	var ptr *C.float
	if err := cudaCheck(C.cuda_alloc(&ptr, C.size_t(capacity))); err != nil {
		return nil, err
	}
	return &cudaTensor{ptr: ptr, rows: rows, cols: cols, capacity: capacity}, nil
}

func (c *cudaRuntime) RandN(rows, cols int, seed uint64) (Tensor, error) {
	if rows < 1 || cols < 1 {
		return nil, ErrShapeMismatch
	}
	if err := c.ensureBLAS(); err != nil {
		return nil, err
	}

	t, err := c.alloc(rows, cols)
	if err != nil {
		return nil, err
	}
	if err := cudaCheck(C.cuda_randn(t.ptr, C.size_t(t.capacity), C.ulonglong(seed))); err != nil {
		_ = t.Free()
		return nil, err
	}
	return t, nil
}

func (c *cudaRuntime) MatMul(a, b Tensor) (Tensor, error) {
	ca, ok := a.(*cudaTensor)
	if !ok {
		return nil, ErrForeignTensor
	}
	cb, ok := b.(*cudaTensor)
	if !ok {
		return nil, ErrForeignTensor
	}
	if err := checkMatMulShapes(a, b); err != nil {
		return nil, err
	}
	if err := c.ensureBLAS(); err != nil {
		return nil, err
	}

	out, err := c.alloc(ca.rows, cb.cols)
	if err != nil {
		return nil, err
	}
	if err := cudaCheck(C.cuda_sgemm(c.blas, ca.ptr, cb.ptr, out.ptr, C.int(ca.rows), C.int(cb.cols), C.int(ca.cols))); err != nil {
		_ = out.Free()
		return nil, err
	}
	return out, nil
}

func (c *cudaRuntime) Synchronize() error {
	return cudaCheck(C.cuda_sync())
}

func (c *cudaRuntime) Close() error {
	if c.blasReady {
		C.cuda_blas_destroy(c.blas)
		c.blasReady = false
	}
	return nil
}

type cudaTensor struct {
	ptr      *C.float
	rows     int
	cols     int
	capacity int
}

func (t *cudaTensor) Rows() int { return t.rows }

func (t *cudaTensor) Cols() int { return t.cols }

func (t *cudaTensor) CopyToHost() ([]float32, error) {
	if t.ptr == nil {
		return nil, errors.New("tensor already freed")
	}
	out := make([]float32, t.rows*t.cols)
	if err := cudaCheck(C.cuda_copy_to_host((*C.float)(unsafe.Pointer(&out[0])), t.ptr, C.size_t(len(out)))); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *cudaTensor) Free() error {
	if t.ptr == nil {
		return nil
	}
	err := cudaCheck(C.cuda_free(t.ptr))
	t.ptr = nil
	return err
}
