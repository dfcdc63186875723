package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/cotp/cotp"
	"github.com/edgeo/drivers/cotp/tpkt"
)

var (
	encodeDstRef     uint16
	encodeSrcRef     uint16
	encodeClass      uint8
	encodeExtended   bool
	encodeNoFlow     bool
	encodeTPDUNumber uint8
	encodeLast       bool
	encodeTPKT       bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode <cr|cc|dt> [payload-hex]",
	Short: "Build a COTP frame and print it as hex",
	Long: `Encode builds a connect request (cr), connect confirm (cc) or data (dt)
frame and prints its wire bytes.

Connect frames take their parameters from --local-tsap (source TSAP),
--remote-tsap (destination TSAP) and --tpdu-size. Data frames carry the
payload given as the second argument.

Examples:
  # S7 connect request for rack 0 slot 2
  edgeo-cotp encode cr --remote-tsap 0102

  # Connect confirm answering source reference 0x0001
  edgeo-cotp encode cc --dst-ref 1 --src-ref 0x44

  # Data frame wrapped in TPKT
  edgeo-cotp encode dt 32010000 --tpkt`,

	Args: cobra.RangeArgs(1, 2),
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().Uint16Var(&encodeDstRef, "dst-ref", 0, "Destination reference")
	encodeCmd.Flags().Uint16Var(&encodeSrcRef, "src-ref", 1, "Source reference")
	encodeCmd.Flags().Uint8Var(&encodeClass, "class", 0, "Protocol class (0-15)")
	encodeCmd.Flags().BoolVar(&encodeExtended, "extended", false, "Set the extended formats option")
	encodeCmd.Flags().BoolVar(&encodeNoFlow, "no-flow-control", false, "Set the no explicit flow control option")
	encodeCmd.Flags().Uint8Var(&encodeTPDUNumber, "tpdu-number", 0, "Data frame sequence number (0-127)")
	encodeCmd.Flags().BoolVar(&encodeLast, "last", true, "Mark the data frame as the last data unit")
	encodeCmd.Flags().BoolVar(&encodeTPKT, "tpkt", false, "Wrap the frame in a TPKT header")
}

func runEncode(cmd *cobra.Command, args []string) error {
	frame, err := buildFrame(strings.ToLower(args[0]), args[1:])
	if err != nil {
		return err
	}

	data, err := cotp.NewEncoder[[]byte](cotp.BytesCodec{}).EncodeToBytes(frame)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	wire := data
	if encodeTPKT {
		var buf bytes.Buffer
		if err := tpkt.Encode(&buf, data); err != nil {
			return fmt.Errorf("tpkt: %w", err)
		}
		wire = buf.Bytes()
	}

	out := newOutput()
	result := struct {
		Hex   string    `json:"hex" yaml:"hex"`
		Frame FrameView `json:"frame" yaml:"frame"`
	}{
		Hex:   hex.EncodeToString(wire),
		Frame: viewFrame(frame, len(data)),
	}
	if ok, err := out.PrintStructured(result); ok {
		return err
	}
	if out.Format() == FormatRaw {
		out.Println(result.Hex)
		return nil
	}

	out.Printf("%s\n", formatHex(wire))
	return nil
}

func buildFrame(kind string, args []string) (*cotp.Frame[[]byte], error) {
	switch kind {
	case "cr", "cc":
		if len(args) > 0 {
			return nil, fmt.Errorf("connect frames take no payload")
		}

		local, err := parseHex(viper.GetString("local-tsap"))
		if err != nil {
			return nil, fmt.Errorf("invalid local TSAP: %w", err)
		}
		remote, err := parseHex(viper.GetString("remote-tsap"))
		if err != nil {
			return nil, fmt.Errorf("invalid remote TSAP: %w", err)
		}
		size, ok := cotp.TPDUSizeFor(viper.GetInt("tpdu-size"))
		if !ok {
			return nil, fmt.Errorf("invalid TPDU size %d", viper.GetInt("tpdu-size"))
		}

		b := cotp.NewConnectBuilder().
			DestinationRef(encodeDstRef).
			SourceRef(encodeSrcRef).
			Class(encodeClass).
			ExtendedFormats(encodeExtended).
			NoExplicitFlowControl(encodeNoFlow).
			TPDUSize(size).
			SrcTSAP(local).
			DstTSAP(remote)

		if kind == "cr" {
			return cotp.NewFrame[[]byte](b.Request()), nil
		}
		return cotp.NewFrame[[]byte](b.Confirm()), nil

	case "dt":
		var payload []byte
		if len(args) > 0 {
			p, err := parseHex(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid payload: %w", err)
			}
			payload = p
		}
		return cotp.NewDtData(payload).Build(encodeTPDUNumber, encodeLast), nil

	default:
		return nil, fmt.Errorf("unknown frame type %q (expected cr, cc or dt)", kind)
	}
}
