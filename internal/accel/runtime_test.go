package accel

import (
	"errors"
	"testing"

	"gpucheck/internal/logging"
)

// stubRuntime reuses the host implementation with a configurable backend name and availability
type stubRuntime struct {
	hostRuntime
	name      string
	available bool
	closed    bool
}

func (s *stubRuntime) Backend() string { return s.name }
func (s *stubRuntime) Available() bool { return s.available }
func (s *stubRuntime) Close() error {
	s.closed = true
	return nil
}

func withBackends(t *testing.T, reg map[string]opener, order []string) {
	t.Helper()
	savedBackends, savedOrder := backends, autoOrder
	backends, autoOrder = reg, order
	t.Cleanup(func() {
		backends, autoOrder = savedBackends, savedOrder
	})
}

func stubOpener(rt *stubRuntime, err error) opener {
	return func(*logging.Logger) (Runtime, error) {
		if err != nil {
			return nil, err
		}
		return rt, nil
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("opencl", logging.Discard())
	if !errors.Is(err, ErrLibraryNotFound) {
		t.Errorf("Expected ErrLibraryNotFound, got: %v", err)
	}
}

func TestOpen_Host(t *testing.T) {
	rt, err := Open("host", logging.Discard())
	if err != nil {
		t.Fatalf("Open(host) error = %v", err)
	}
	if rt.Backend() != "host" {
		t.Errorf("Expected host backend, got: %s", rt.Backend())
	}
}

func TestOpenAuto_NoBackendsCompiled(t *testing.T) {
	withBackends(t, map[string]opener{"host": openHost}, []string{"rocm", "cuda"})

	_, err := Open("auto", logging.Discard())
	if !errors.Is(err, ErrLibraryNotFound) {
		t.Errorf("Expected ErrLibraryNotFound when only host is compiled in, got: %v", err)
	}
}

func TestOpenAuto_PrefersAvailableBackend(t *testing.T) {
	rocm := &stubRuntime{name: "rocm", available: false}
	cuda := &stubRuntime{name: "cuda", available: true}
	withBackends(t, map[string]opener{
		"rocm": stubOpener(rocm, nil),
		"cuda": stubOpener(cuda, nil),
	}, []string{"rocm", "cuda"})

	rt, err := Open("", logging.Discard())
	if err != nil {
		t.Fatalf("Open(auto) error = %v", err)
	}
	if rt.Backend() != "cuda" {
		t.Errorf("Expected cuda backend, got: %s", rt.Backend())
	}
	if !rocm.closed {
		t.Error("Expected the unused rocm runtime to be closed")
	}
}

func TestOpenAuto_FallsBackToLoadedBackend(t *testing.T) {
	rocm := &stubRuntime{name: "rocm", available: false}
	withBackends(t, map[string]opener{
		"rocm": stubOpener(rocm, nil),
		"cuda": stubOpener(nil, ErrLibraryNotFound),
	}, []string{"rocm", "cuda"})

	rt, err := Open("auto", logging.Discard())
	if err != nil {
		t.Fatalf("Open(auto) error = %v", err)
	}
	if rt.Backend() != "rocm" || rt.Available() {
		t.Errorf("Expected unavailable rocm runtime, got: %s available=%v", rt.Backend(), rt.Available())
	}
}

func TestOpenAuto_AllFail(t *testing.T) {
	withBackends(t, map[string]opener{
		"rocm": stubOpener(nil, errors.New("hip: incompatible driver")),
		"cuda": stubOpener(nil, ErrLibraryNotFound),
	}, []string{"rocm", "cuda"})

	_, err := Open("auto", logging.Discard())
	if err == nil {
		t.Fatal("Expected error when every backend fails")
	}
	if !errors.Is(err, ErrLibraryNotFound) {
		t.Errorf("Expected joined error to wrap ErrLibraryNotFound, got: %v", err)
	}
}

func TestBackends_Sorted(t *testing.T) {
	withBackends(t, map[string]opener{"rocm": nil, "cuda": nil, "host": nil}, nil)

	got := Backends()
	want := []string{"cuda", "host", "rocm"}
	if len(got) != len(want) {
		t.Fatalf("Backends() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Backends()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
