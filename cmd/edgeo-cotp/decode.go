package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/cotp/cotp"
	"github.com/edgeo/drivers/cotp/tpkt"
)

var decodeTPKT bool

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode COTP frames from hex",
	Long: `Decode parses one or more COTP frames given as hex bytes and prints
their fields. Arguments are concatenated, so bytes may be split across
several arguments. Separators (space, colon, dash) and a 0x prefix are
ignored.

Data PDU payloads are printed raw; the payload is assumed to run to the
end of the input (or of the TPKT message with --tpkt).

Examples:
  # Decode a connect request
  edgeo-cotp decode 0de00001000200c0010ac1020100

  # Decode a captured TPKT stream
  edgeo-cotp decode --tpkt 0300001602f080 32010000...

  # Print as JSON
  edgeo-cotp decode -o json 02f080320100000000`,

	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeTPKT, "tpkt", false, "Input is TPKT framed (RFC 1006)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	data, err := parseHex(strings.Join(args, ""))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	out := newOutput()

	if !decodeTPKT {
		return decodeFrames(out, data)
	}

	buf := bytes.NewBuffer(data)
	for buf.Len() > 0 {
		msg, err := tpkt.Decode(buf)
		if err != nil {
			return fmt.Errorf("tpkt: %w", err)
		}
		if msg == nil {
			return fmt.Errorf("tpkt: incomplete message, %d trailing bytes", buf.Len())
		}
		if err := decodeFrames(out, msg); err != nil {
			return err
		}
	}
	return nil
}

// decodeFrames decodes and prints every frame in data
func decodeFrames(out *Formatter, data []byte) error {
	dec := cotp.NewDecoder[[]byte](cotp.BytesCodec{})
	buf := bytes.NewBuffer(data)

	for first := true; buf.Len() > 0; first = false {
		raw := buf.Bytes()
		frame, err := dec.Decode(buf)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if frame == nil {
			return fmt.Errorf("decode: incomplete frame, need more than %d bytes", len(raw))
		}

		if !first && out.Format() == FormatTable {
			out.Println()
		}
		if err := printFrame(out, frame, raw[:len(raw)-buf.Len()]); err != nil {
			return err
		}
	}
	return nil
}
