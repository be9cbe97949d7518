package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gpucheck/internal/smoke"
)

func newInspectCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect REPORT",
		Short: "Verify and summarize a saved run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			report, err := smoke.LoadReport(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "Report:   %s\n", args[0])
			fmt.Fprintf(stdout, "Digest:   OK (%s)\n", report.Digest)
			fmt.Fprintf(stdout, "Time:     %s\n", report.Timestamp)
			if report.Backend != "" {
				fmt.Fprintf(stdout, "Backend:  %s (%s %s)\n", report.Backend, report.Library, report.Version)
			}
			fmt.Fprintf(stdout, "Devices:  %d\n", len(report.Devices))
			for _, d := range report.Devices {
				fmt.Fprintf(stdout, "  [%d] %s, %.1f GB, compute %s\n", d.Index, d.Name, d.MemoryGB(), d.ComputeCapability())
			}
			if report.Compute != nil {
				fmt.Fprintf(stdout, "Compute:  %dx%d sum %.2f in %.1f ms (fingerprint %s)\n",
					report.Compute.Size, report.Compute.Size, report.Compute.Sum, report.Compute.DurationMS, report.Compute.Fingerprint)
			}

			if report.Passed() {
				fmt.Fprintln(stdout, "Result:   PASSED")
			} else {
				fmt.Fprintf(stdout, "Result:   FAILED at %s: %s\n", report.FailedStage, report.Error)
			}
			return nil
		},
	}
}
