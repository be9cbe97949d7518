//go:build !linux

package accel

// hostMemoryBytes is not probed outside Linux.
func hostMemoryBytes() uint64 { return 0 }
