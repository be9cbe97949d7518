package accel

import (
	"errors"
	"math"
	"testing"

	"gpucheck/internal/logging"
)

func TestHostRuntime_Devices(t *testing.T) {
	rt := NewHostRuntime(logging.Discard())

	if !rt.Available() {
		t.Fatal("Expected host runtime to be available")
	}

	count, err := rt.DeviceCount()
	if err != nil || count != 1 {
		t.Fatalf("Expected 1 device, got: %d (%v)", count, err)
	}

	props, err := rt.DeviceProperties(0)
	if err != nil {
		t.Fatalf("DeviceProperties(0) error = %v", err)
	}
	if props.Name == "" {
		t.Error("Expected a device name")
	}
	if props.ComputeCapability() != "0.0" {
		t.Errorf("Expected compute capability 0.0, got: %s", props.ComputeCapability())
	}

	if _, err := rt.DeviceName(1); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Expected ErrInvalidDevice for index 1, got: %v", err)
	}
	if _, err := rt.DeviceProperties(-1); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Expected ErrInvalidDevice for index -1, got: %v", err)
	}
}

func TestHostDeviceName(t *testing.T) {
	tests := []struct {
		threads int
		want    string
	}{
		{1, "Host CPU (1 thread)"},
		{2, "Host CPU (2 threads)"},
		{64, "Host CPU (64 threads)"},
	}

	for _, tt := range tests {
		if got := hostDeviceName(tt.threads); got != tt.want {
			t.Errorf("hostDeviceName(%d) = %q, want %q", tt.threads, got, tt.want)
		}
	}
}

func TestHostRuntime_RandNDeterministic(t *testing.T) {
	rt := NewHostRuntime(logging.Discard())

	a, err := rt.RandN(8, 8, 42)
	if err != nil {
		t.Fatalf("RandN error = %v", err)
	}
	b, err := rt.RandN(8, 8, 42)
	if err != nil {
		t.Fatalf("RandN error = %v", err)
	}
	c, err := rt.RandN(8, 8, 43)
	if err != nil {
		t.Fatalf("RandN error = %v", err)
	}

	da, _ := a.CopyToHost()
	db, _ := b.CopyToHost()
	dc, _ := c.CopyToHost()

	if len(da) != 64 {
		t.Fatalf("Expected 64 values, got: %d", len(da))
	}
	for i := range da {
		if da[i] != db[i] {
			t.Fatalf("Same seed produced different value at %d: %v vs %v", i, da[i], db[i])
		}
	}

	same := true
	for i := range da {
		if da[i] != dc[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("Different seeds produced identical matrices")
	}
}

func TestHostRuntime_MatMul(t *testing.T) {
	rt := NewHostRuntime(logging.Discard())

	a, _ := rt.RandN(3, 4, 1)
	b, _ := rt.RandN(4, 2, 2)

	c, err := rt.MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul error = %v", err)
	}
	if err := rt.Synchronize(); err != nil {
		t.Fatalf("Synchronize error = %v", err)
	}

	if c.Rows() != 3 || c.Cols() != 2 {
		t.Fatalf("Expected 3x2 result, got: %dx%d", c.Rows(), c.Cols())
	}

	ha, _ := a.CopyToHost()
	hb, _ := b.CopyToHost()
	hc, _ := c.CopyToHost()

	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			var want float64
			for k := 0; k < 4; k++ {
				want += float64(ha[i*4+k]) * float64(hb[k*2+j])
			}
			if got := float64(hc[i*2+j]); math.Abs(got-want) > 1e-5 {
				t.Errorf("c[%d][%d] = %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestHostRuntime_MatMulErrors(t *testing.T) {
	rt := NewHostRuntime(logging.Discard())

	a, _ := rt.RandN(2, 3, 1)
	b, _ := rt.RandN(2, 3, 2)

	if _, err := rt.MatMul(a, b); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got: %v", err)
	}

	if _, err := rt.MatMul(a, foreignTensor{}); !errors.Is(err, ErrForeignTensor) {
		t.Errorf("Expected ErrForeignTensor, got: %v", err)
	}

	if _, err := rt.RandN(0, 3, 1); err == nil {
		t.Error("Expected error for empty matrix")
	}
}

func TestDeviceProperties_Formatting(t *testing.T) {
	props := DeviceProperties{TotalMemory: 24 * 1024 * 1024 * 1024, Major: 8, Minor: 9}

	if props.MemoryGB() != 24 {
		t.Errorf("Expected 24 GB, got: %v", props.MemoryGB())
	}
	if props.ComputeCapability() != "8.9" {
		t.Errorf("Expected 8.9, got: %s", props.ComputeCapability())
	}
}

type foreignTensor struct{}

func (foreignTensor) Rows() int                      { return 3 }
func (foreignTensor) Cols() int                      { return 3 }
func (foreignTensor) CopyToHost() ([]float32, error) { return nil, nil }
func (foreignTensor) Free() error                    { return nil }
