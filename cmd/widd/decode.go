package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soypat/winc/wid"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex...]",
	Short: "Decode WID messages given as hex",
	Long: `Decode prints the records of each message given as an argument, or of
each line of standard input when no arguments are given. Spaces and colons
inside the hex are ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) > 0 {
			for _, arg := range args {
				if err := decodeHex(out, arg); err != nil {
					return err
				}
			}
			return nil
		}
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := decodeHex(out, line); err != nil {
				return err
			}
		}
		return sc.Err()
	},
}

func decodeHex(w io.Writer, s string) error {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(s)
	msg, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode %q: %w", s, err)
	}
	return writeMessage(w, msg)
}

// writeMessage prints the message header followed by one record per line.
// Records decoded before a malformed one are printed before the error is
// returned.
func writeMessage(w io.Writer, msg []byte) error {
	r, err := wid.NewReader(msg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%c len=%d\n", r.Kind(), wid.DecodeHeader(msg).Length)
	for r.Next() {
		rec := r.Record()
		fmt.Fprintf(w, "\t%-6s %s\n", rec.ID.Type(), rec)
	}
	return r.Err()
}
