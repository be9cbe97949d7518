package smoke

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gpucheck/internal/accel"
)

const ruleWidth = 50

var (
	heavyRule = strings.Repeat("=", ruleWidth)
	lightRule = strings.Repeat("-", ruleWidth)
)

// possibleCauses are printed when no device is visible
var possibleCauses = []string{
	"/dev/kfd not mounted",
	"/dev/dri not mounted",
	"User not in 'video' group",
}

// printer renders the diagnostic text. Colors are only emitted when the
// writer is a terminal; otherwise output is plain and stable across runs.
type printer struct {
	w     io.Writer
	pass  lipgloss.Style
	fail  lipgloss.Style
	title lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:     w,
		pass:  r.NewStyle().Foreground(lipgloss.Color("2")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		title: r.NewStyle().Bold(true),
	}
}

func (p *printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) ok() string {
	return p.pass.Render("✓")
}

func (p *printer) cross() string {
	return p.fail.Render("✗")
}

func (p *printer) banner(text string) {
	p.printf("%s\n%s\n%s\n", heavyRule, p.title.Render(text), heavyRule)
}

func (p *printer) section(text string) {
	p.printf("\n%s\n%s\n%s\n", lightRule, text, lightRule)
}

func (p *printer) header() {
	p.banner("GPU Container - GPU Test")
}

func (p *printer) runtimeOK(library, version string) {
	p.printf("\n%s %s %s\n", p.ok(), library, version)
}

func (p *printer) runtimeMissing() {
	p.printf("\n%s Accelerator runtime not found\n", p.cross())
}

func (p *printer) noDevice() {
	p.printf("%s No GPU available\n", p.cross())
	p.printf("\nPossible issues:\n")
	for _, cause := range possibleCauses {
		p.printf("  - %s\n", cause)
	}
}

func (p *printer) available(backend string, count int) {
	p.printf("%s GPU available (%s backend)\n", p.ok(), displayBackend(backend))
	p.printf("%s Device count: %d\n", p.ok(), count)
}

func (p *printer) devicesHeader() {
	p.section("GPUs:")
}

func (p *printer) device(props accel.DeviceProperties) {
	p.printf("\n  [%d] %s\n", props.Index, props.Name)
	p.printf("      Memory: %.1f GB\n", props.MemoryGB())
	p.printf("      Compute: %s\n", props.ComputeCapability())
}

func (p *printer) deviceFailed(index int, err error) {
	p.printf("\n  %s Failed to query device %d: %v\n", p.cross(), index, err)
}

func (p *printer) computeHeader() {
	p.section("Quick test:")
}

func (p *printer) computeOK(rows, cols int, sum float64) {
	p.printf("\n  %s Matrix multiplication (%dx%d): OK\n", p.ok(), rows, cols)
	p.printf("  %s Result sum: %.2f\n", p.ok(), sum)
}

func (p *printer) verified(maxErr float64) {
	p.printf("  %s Host verification: max error %.2e\n", p.ok(), maxErr)
}

func (p *printer) computeFailed(err error) {
	p.printf("\n  %s Test failed: %v\n", p.cross(), err)
}

func (p *printer) summary() {
	p.printf("\n")
	p.banner("All tests passed!")
}

func displayBackend(name string) string {
	switch name {
	case "cuda":
		return "CUDA"
	case "rocm":
		return "ROCm"
	default:
		return name
	}
}
