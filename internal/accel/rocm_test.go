//go:build rocm

package accel

import (
	"testing"

	"gpucheck/internal/logging"
)

func TestFormatHIPVersion(t *testing.T) {
	tests := map[int]string{
		60032830: "6.0.32830",
		50731921: "5.7.31921",
	}
	for in, want := range tests {
		if got := formatHIPVersion(in); got != want {
			t.Errorf("formatHIPVersion(%d) = %s, want %s", in, got, want)
		}
	}
}

func TestROCmRuntime_Smoke(t *testing.T) {
	rt, err := openROCm(logging.Discard())
	if err != nil {
		t.Skipf("HIP runtime not available: %v", err)
	}
	defer rt.Close()
	if !rt.Available() {
		t.Skip("no ROCm device visible")
	}

	a, err := rt.RandN(64, 64, 1)
	if err != nil {
		t.Fatalf("RandN error = %v", err)
	}
	defer a.Free()

	c, err := rt.MatMul(a, a)
	if err != nil {
		t.Fatalf("MatMul error = %v", err)
	}
	defer c.Free()

	if err := rt.Synchronize(); err != nil {
		t.Fatalf("Synchronize error = %v", err)
	}
	if _, err := c.CopyToHost(); err != nil {
		t.Fatalf("CopyToHost error = %v", err)
	}
}
