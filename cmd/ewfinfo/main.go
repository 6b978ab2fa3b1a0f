// Command ewfinfo prints the acquisition metadata, media geometry, and
// digests recorded in a segment-file set, without reading any chunk data.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/laenix/ewfkit/ewf"
	"github.com/laenix/ewfkit/header"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ewfinfo <segment-file> [more-segment-files...]",
		Short: "Print acquisition metadata for an evidence set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := ewf.Open(args, ewf.Options{DiagnosticsOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer h.Close()

			m := h.Media()
			fmt.Printf("media size:        %d bytes\n", m.MediaSize)
			fmt.Printf("sector size:       %d bytes\n", m.BytesPerSector)
			fmt.Printf("chunk size:        %d bytes\n", m.ChunkSize)
			fmt.Printf("sectors per chunk: %d\n", m.SectorsPerChunk)
			fmt.Printf("number of sectors: %d\n", m.NumberOfSectors)
			fmt.Printf("format:            %s\n", m.Format)

			for _, id := range []string{
				header.CaseNumber, header.Description, header.EvidenceNumber,
				header.ExaminerName, header.Notes, header.AcquiryDate,
				header.AcquirySoftwareVersion, header.AcquiryOperatingSystem,
			} {
				if v, ok := h.HeaderValue(id); ok {
					fmt.Printf("%-18s %s\n", id+":", v)
				}
			}
			if v, ok := h.HashValue(header.MD5); ok {
				fmt.Printf("MD5 hash:          %s\n", v)
			}
			if v, ok := h.HashValue(header.SHA1); ok {
				fmt.Printf("SHA1 hash:         %s\n", v)
			}

			if ranges := h.AcquisitionErrorRanges(); len(ranges) > 0 {
				fmt.Printf("acquisition errors: %d range(s)\n", len(ranges))
				for _, r := range ranges {
					fmt.Printf("  sector %d, count %d\n", r.Start, r.Count)
				}
			}
			return nil
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
