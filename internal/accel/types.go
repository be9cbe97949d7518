package accel

import (
	"errors"
	"fmt"
)

var (
	// ErrLibraryNotFound is returned when an accelerator runtime library cannot be loaded
	ErrLibraryNotFound = errors.New("accelerator runtime library not found")
	// ErrNoDevice is returned when the runtime loaded but sees no usable accelerator
	ErrNoDevice = errors.New("no accelerator device available")
	// ErrInvalidDevice is returned for a device index outside 0..count-1
	ErrInvalidDevice = errors.New("invalid device index")
	// ErrForeignTensor is returned when a tensor is passed to a runtime that did not allocate it
	ErrForeignTensor = errors.New("tensor belongs to a different runtime")
	// ErrShapeMismatch is returned when matrix dimensions are incompatible
	ErrShapeMismatch = errors.New("matrix shape mismatch")
)

const bytesPerGiB = 1024 * 1024 * 1024

// DeviceProperties describes one accelerator as reported by the runtime
type DeviceProperties struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	TotalMemory uint64 `json:"total_memory_bytes"`
	Major       int    `json:"compute_major"`
	Minor       int    `json:"compute_minor"`
}

// MemoryGB returns the total memory in GiB.
func (p DeviceProperties) MemoryGB() float64 {
	return float64(p.TotalMemory) / bytesPerGiB
}

// ComputeCapability returns "major.minor".
func (p DeviceProperties) ComputeCapability() string {
	return fmt.Sprintf("%d.%d", p.Major, p.Minor)
}

func checkIndex(index, count int) error {
	if index < 0 || index >= count {
		return fmt.Errorf("%w: %d (device count %d)", ErrInvalidDevice, index, count)
	}
	return nil
}

func checkMatMulShapes(a, b Tensor) error {
	if a.Cols() != b.Rows() {
		return fmt.Errorf("%w: %dx%d * %dx%d", ErrShapeMismatch, a.Rows(), a.Cols(), b.Rows(), b.Cols())
	}
	return nil
}
