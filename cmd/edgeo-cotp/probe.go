package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run the connect handshake and show the negotiated parameters",
	Long: `Probe connects to a device, sends a connect request and prints the
connect confirm returned by the peer.

Examples:
  # Probe a PLC on rack 0 slot 2
  edgeo-cotp probe -H 192.168.0.1

  # Probe an S7-1200 (rack 0 slot 1) in JSON
  edgeo-cotp probe -H 192.168.0.1 --remote-tsap 0101 -o json`,

	RunE: runProbe,
}

// ProbeResult is the outcome of a connect handshake
type ProbeResult struct {
	Address      string        `json:"address" yaml:"address"`
	ConnectionID string        `json:"connection_id" yaml:"connection_id"`
	Latency      time.Duration `json:"latency" yaml:"latency"`
	DstRef       string        `json:"dst_ref" yaml:"dst_ref"`
	SrcRef       string        `json:"src_ref" yaml:"src_ref"`
	Class        uint8         `json:"class" yaml:"class"`
	TPDUSize     int           `json:"tpdu_size,omitempty" yaml:"tpdu_size,omitempty"`
	SrcTSAP      string        `json:"src_tsap,omitempty" yaml:"src_tsap,omitempty"`
	DstTSAP      string        `json:"dst_tsap,omitempty" yaml:"dst_tsap,omitempty"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout")*2)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	cc, _ := client.Negotiated()
	addr, _ := targetAddress()

	result := ProbeResult{
		Address:      addr,
		ConnectionID: client.ConnectionID(),
		Latency:      client.Metrics().ConnectLatency.Stats().Max,
		DstRef:       hex.EncodeToString(cc.DestinationRef[:]),
		SrcRef:       hex.EncodeToString(cc.SourceRef[:]),
		Class:        cc.Class,
	}
	if size, ok := cc.TPDUSize(); ok {
		result.TPDUSize = size.Bytes()
	}
	if tsap, ok := cc.SrcTSAP(); ok {
		result.SrcTSAP = hex.EncodeToString(tsap)
	}
	if tsap, ok := cc.DstTSAP(); ok {
		result.DstTSAP = hex.EncodeToString(tsap)
	}

	out := newOutput()
	if ok, err := out.PrintStructured(result); ok {
		return err
	}
	if out.Format() == FormatRaw {
		out.Printf("%s %d %s %s\n", result.Address, result.TPDUSize, result.SrcTSAP, result.DstTSAP)
		return nil
	}

	out.Printf("\n=== %s ===\n\n", result.Address)
	out.PrintKeyValue(map[string]interface{}{
		"Connection ID":   result.ConnectionID,
		"Connect Latency": result.Latency.Round(time.Microsecond),
		"Destination Ref": result.DstRef,
		"Source Ref":      result.SrcRef,
		"Class":           result.Class,
		"TPDU Size":       result.TPDUSize,
		"Source TSAP":     result.SrcTSAP,
		"Dest TSAP":       result.DstTSAP,
	}, []string{
		"Connection ID",
		"Connect Latency",
		"Destination Ref",
		"Source Ref",
		"Class",
		"TPDU Size",
		"Source TSAP",
		"Dest TSAP",
	})
	out.Println()
	return nil
}
