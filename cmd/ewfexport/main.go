// Command ewfexport streams the logical media bytes of an evidence set to
// stdout or a file, for piping into dd-style raw-image consumers.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/laenix/ewfkit/ewf"
)

func main() {
	var outPath string

	rootCmd := &cobra.Command{
		Use:   "ewfexport <segment-file> [more-segment-files...]",
		Short: "Export an evidence set's logical media bytes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := ewf.Open(args, ewf.Options{DiagnosticsOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer h.Close()

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("ewfexport: create %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}

			_, err = io.Copy(out, h.NewReader())
			return err
		},
	}
	rootCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file path (default stdout)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
