package smoke

import (
	"gpucheck/internal/accel"
)

// fakeRuntime is a scripted accel.Runtime for runner tests
type fakeRuntime struct {
	backend   string
	library   string
	version   string
	available bool
	devices   []accel.DeviceProperties

	countErr    error
	nameErr     error
	randErr     error
	matmulErr   error
	matmulPanic interface{}
	syncErr     error

	// product, when set, is returned by MatMul instead of the real product.
	product []float32

	closed  bool
	freed   int
	synced  bool
	allocs  int
	seenSeq []uint64
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		backend:   "cuda",
		library:   "FakeRT",
		version:   "1.0",
		available: true,
		devices: []accel.DeviceProperties{
			{Name: "Test GPU", TotalMemory: 8 * 1024 * 1024 * 1024, Major: 8, Minor: 6},
		},
	}
}

func (f *fakeRuntime) Backend() string { return f.backend }
func (f *fakeRuntime) Library() string { return f.library }
func (f *fakeRuntime) Version() string { return f.version }
func (f *fakeRuntime) Available() bool { return f.available }

func (f *fakeRuntime) DeviceCount() (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.devices), nil
}

func (f *fakeRuntime) DeviceName(index int) (string, error) {
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.devices[index].Name, nil
}

func (f *fakeRuntime) DeviceProperties(index int) (accel.DeviceProperties, error) {
	props := f.devices[index]
	props.Index = index
	return props, nil
}

func (f *fakeRuntime) RandN(rows, cols int, seed uint64) (accel.Tensor, error) {
	if f.randErr != nil {
		return nil, f.randErr
	}
	f.allocs++
	f.seenSeq = append(f.seenSeq, seed)
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = float32(int(seed)%7+i%5) * 0.25
	}
	return &fakeTensor{rows: rows, cols: cols, data: data, owner: f}, nil
}

func (f *fakeRuntime) MatMul(a, b accel.Tensor) (accel.Tensor, error) {
	if f.matmulPanic != nil {
		panic(f.matmulPanic)
	}
	if f.matmulErr != nil {
		return nil, f.matmulErr
	}
	f.allocs++

	ta, tb := a.(*fakeTensor), b.(*fakeTensor)
	if f.product != nil {
		return &fakeTensor{rows: ta.rows, cols: tb.cols, data: f.product, owner: f}, nil
	}

	out := make([]float32, ta.rows*tb.cols)
	for i := 0; i < ta.rows; i++ {
		for j := 0; j < tb.cols; j++ {
			var sum float32
			for k := 0; k < ta.cols; k++ {
				sum += ta.data[i*ta.cols+k] * tb.data[k*tb.cols+j]
			}
			out[i*tb.cols+j] = sum
		}
	}
	return &fakeTensor{rows: ta.rows, cols: tb.cols, data: out, owner: f}, nil
}

func (f *fakeRuntime) Synchronize() error {
	f.synced = true
	return f.syncErr
}

func (f *fakeRuntime) Close() error {
	f.closed = true
	return nil
}

type fakeTensor struct {
	rows  int
	cols  int
	data  []float32
	owner *fakeRuntime
}

func (t *fakeTensor) Rows() int { return t.rows }
func (t *fakeTensor) Cols() int { return t.cols }

func (t *fakeTensor) CopyToHost() ([]float32, error) {
	out := make([]float32, len(t.data))
	copy(out, t.data)
	return out, nil
}

func (t *fakeTensor) Free() error {
	t.owner.freed++
	return nil
}
