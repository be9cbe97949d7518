//go:build !linux

package preflight

// Probe returns no findings: device node layout is Linux specific.
func Probe(string) []Finding {
	return nil
}
