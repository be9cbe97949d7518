package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"gpucheck/internal/accel"
)

var version = "0.1.0-dev"

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled-in backends",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(stdout, "gpucheck version %s\n", version)
			fmt.Fprintf(stdout, "backends: %s\n", strings.Join(accel.Backends(), ", "))
		},
	}
}
