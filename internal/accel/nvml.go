//go:build linux && cgo

package accel

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"gpucheck/internal/logging"
)

// DeviceInterface is the subset of nvml.Device used for enumeration (for mocking)
type DeviceInterface interface {
	GetName() (string, nvml.Return)
	GetUUID() (string, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
	GetCudaComputeCapability() (int, int, nvml.Return)
}

// NVMLInterface defines the NVML calls used by the CUDA backend (for mocking)
type NVMLInterface interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (DeviceInterface, nvml.Return)
	SystemGetDriverVersion() (string, nvml.Return)
	SystemGetCudaDriverVersion() (int, nvml.Return)
}

// deviceWrapper wraps nvml.Device to implement DeviceInterface
type deviceWrapper struct {
	device nvml.Device
}

func (w deviceWrapper) GetName() (string, nvml.Return) {
	return w.device.GetName()
}

func (w deviceWrapper) GetUUID() (string, nvml.Return) {
	return w.device.GetUUID()
}

func (w deviceWrapper) GetMemoryInfo() (nvml.Memory, nvml.Return) {
	return w.device.GetMemoryInfo()
}

func (w deviceWrapper) GetCudaComputeCapability() (int, int, nvml.Return) {
	return w.device.GetCudaComputeCapability()
}

// RealNVML implements NVMLInterface using the NVML shared library
type RealNVML struct{}

// NewRealNVML creates a new real NVML instance
func NewRealNVML() *RealNVML {
	return &RealNVML{}
}

// Init loads libnvidia-ml and initializes NVML
func (r *RealNVML) Init() nvml.Return {
	return nvml.Init()
}

// Shutdown shuts down NVML
func (r *RealNVML) Shutdown() nvml.Return {
	return nvml.Shutdown()
}

// DeviceGetCount returns the number of GPU devices
func (r *RealNVML) DeviceGetCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

// DeviceGetHandleByIndex returns a handle to a GPU device
func (r *RealNVML) DeviceGetHandleByIndex(index int) (DeviceInterface, nvml.Return) {
	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, ret
	}
	return deviceWrapper{device: device}, ret
}

// SystemGetDriverVersion returns the driver version
func (r *RealNVML) SystemGetDriverVersion() (string, nvml.Return) {
	return nvml.SystemGetDriverVersion()
}

// SystemGetCudaDriverVersion returns the CUDA driver version
func (r *RealNVML) SystemGetCudaDriverVersion() (int, nvml.Return) {
	return nvml.SystemGetCudaDriverVersion()
}

// nvmlInventory is a snapshot of what NVML reports, taken once per run
type nvmlInventory struct {
	DriverVersion string
	CUDAVersion   int
	Devices       []DeviceProperties
	UUIDs         []string
}

// queryNVML initializes NVML, reads driver and device information and shuts NVML down again.
// A missing libnvidia-ml maps to ErrLibraryNotFound.
func queryNVML(n NVMLInterface, logger *logging.Logger) (nvmlInventory, error) {
	var inv nvmlInventory

	ret := n.Init()
	if ret == nvml.ERROR_LIBRARY_NOT_FOUND {
		return inv, fmt.Errorf("%w: libnvidia-ml: %s", ErrLibraryNotFound, nvml.ErrorString(ret))
	}
	if ret != nvml.SUCCESS {
		return inv, fmt.Errorf("failed to initialize NVML: %s", nvml.ErrorString(ret))
	}
	defer func() {
		if ret := n.Shutdown(); ret != nvml.SUCCESS {
			logger.Warn("accel.cuda.nvml.shutdown.failed", "NVML shutdown reported an error", map[string]interface{}{
				"error": nvml.ErrorString(ret),
			})
		}
	}()

	if driver, ret := n.SystemGetDriverVersion(); ret == nvml.SUCCESS {
		inv.DriverVersion = driver
	} else {
		logger.Warn("accel.cuda.driver.version.failed", "Failed to get driver version", map[string]interface{}{
			"error": nvml.ErrorString(ret),
		})
	}

	cudaVersion, ret := n.SystemGetCudaDriverVersion()
	if ret != nvml.SUCCESS {
		return inv, fmt.Errorf("failed to get CUDA driver version: %s", nvml.ErrorString(ret))
	}
	inv.CUDAVersion = cudaVersion

	count, ret := n.DeviceGetCount()
	if ret != nvml.SUCCESS {
		// No device nodes in the container also lands here; report it as zero devices.
		logger.Warn("accel.cuda.device.count.failed", "Failed to get GPU count", map[string]interface{}{
			"error": nvml.ErrorString(ret),
		})
		return inv, nil
	}

	for i := 0; i < count; i++ {
		device, ret := n.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			return inv, fmt.Errorf("failed to get handle for device %d: %s", i, nvml.ErrorString(ret))
		}

		props := DeviceProperties{Index: i}

		name, ret := device.GetName()
		if ret != nvml.SUCCESS {
			return inv, fmt.Errorf("failed to get name of device %d: %s", i, nvml.ErrorString(ret))
		}
		props.Name = name

		memInfo, ret := device.GetMemoryInfo()
		if ret != nvml.SUCCESS {
			return inv, fmt.Errorf("failed to get memory of device %d: %s", i, nvml.ErrorString(ret))
		}
		props.TotalMemory = memInfo.Total

		major, minor, ret := device.GetCudaComputeCapability()
		if ret != nvml.SUCCESS {
			return inv, fmt.Errorf("failed to get compute capability of device %d: %s", i, nvml.ErrorString(ret))
		}
		props.Major, props.Minor = major, minor

		uuid, ret := device.GetUUID()
		if ret != nvml.SUCCESS {
			uuid = ""
		}

		inv.Devices = append(inv.Devices, props)
		inv.UUIDs = append(inv.UUIDs, uuid)

		logger.Info("accel.cuda.device.detected", "GPU device detected", map[string]interface{}{
			"index":   i,
			"name":    props.Name,
			"uuid":    uuid,
			"compute": props.ComputeCapability(),
		})
	}

	return inv, nil
}

// formatCUDAVersion turns NVML's 1000*major + 10*minor encoding into "major.minor"
func formatCUDAVersion(v int) string {
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
