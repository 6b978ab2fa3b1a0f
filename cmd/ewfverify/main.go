// Command ewfverify re-hashes an evidence set's logical media bytes and
// compares the result against the MD5/SHA1 recorded at acquisition time.
package main

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/laenix/ewfkit/ewf"
	"github.com/laenix/ewfkit/header"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ewfverify <segment-file> [more-segment-files...]",
		Short: "Verify an evidence set's recorded digests against its media bytes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := ewf.Open(args, ewf.Options{DiagnosticsOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer h.Close()

			md5h := md5.New()
			sha1h := sha1.New()
			if _, err := io.Copy(io.MultiWriter(md5h, sha1h), h.NewReader()); err != nil {
				return fmt.Errorf("ewfverify: read media: %w", err)
			}
			gotMD5 := fmt.Sprintf("%x", md5h.Sum(nil))
			gotSHA1 := fmt.Sprintf("%x", sha1h.Sum(nil))

			ok := true
			if want, present := h.HashValue(header.MD5); present {
				match := want == gotMD5
				ok = ok && match
				fmt.Printf("MD5:  recorded=%s computed=%s match=%t\n", want, gotMD5, match)
			} else {
				fmt.Println("MD5:  not recorded")
			}
			if want, present := h.HashValue(header.SHA1); present {
				match := want == gotSHA1
				ok = ok && match
				fmt.Printf("SHA1: recorded=%s computed=%s match=%t\n", want, gotSHA1, match)
			} else {
				fmt.Println("SHA1: not recorded")
			}

			if ranges := h.AcquisitionErrorRanges(); len(ranges) > 0 {
				fmt.Printf("acquisition recorded %d unreadable range(s) during capture\n", len(ranges))
			}

			if !ok {
				os.Exit(1)
			}
			return nil
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
