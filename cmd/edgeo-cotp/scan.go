// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/cotp/cotp"
)

var (
	scanTimeout  time.Duration
	scanRackMax  uint8
	scanSlotMax  uint8
	scanConnType string
	scanAll      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find the rack/slot TSAPs a device accepts",
	Long: `Scan tries a connect handshake for every rack and slot combination
and reports which remote TSAPs the device accepts.

Examples:
  # Try racks 0-1 and slots 0-4
  edgeo-cotp scan -H 192.168.0.1

  # Wider search as OP connection, showing refusals too
  edgeo-cotp scan -H 192.168.0.1 --rack-max 7 --slot-max 31 --type op --all`,

	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", time.Second, "Timeout per handshake")
	scanCmd.Flags().Uint8Var(&scanRackMax, "rack-max", 1, "Highest rack number to try (0-7)")
	scanCmd.Flags().Uint8Var(&scanSlotMax, "slot-max", 4, "Highest slot number to try (0-31)")
	scanCmd.Flags().StringVar(&scanConnType, "type", "pg", "Connection type (pg, op, basic)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show refused and failed candidates too")
}

// ScanResult is the outcome of one handshake attempt
type ScanResult struct {
	Rack     uint8  `json:"rack" yaml:"rack"`
	Slot     uint8  `json:"slot" yaml:"slot"`
	TSAP     string `json:"tsap" yaml:"tsap"`
	Status   string `json:"status" yaml:"status"`
	TPDUSize int    `json:"tpdu_size,omitempty" yaml:"tpdu_size,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func parseConnectionType(s string) (uint8, error) {
	switch s {
	case "pg":
		return cotp.ConnectionTypePG, nil
	case "op":
		return cotp.ConnectionTypeOP, nil
	case "basic", "s7-basic":
		return cotp.ConnectionTypeBasic, nil
	}
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		return uint8(n), nil
	}
	return 0, fmt.Errorf("unknown connection type: %s", s)
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanRackMax > 7 || scanSlotMax > 31 {
		return fmt.Errorf("rack must be 0-7 and slot 0-31")
	}
	connType, err := parseConnectionType(scanConnType)
	if err != nil {
		return err
	}
	if _, err := targetAddress(); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Scanning rack/slot combinations...")

	var results []ScanResult
	accepted := 0
	for rack := uint8(0); rack <= scanRackMax; rack++ {
		for slot := uint8(0); slot <= scanSlotMax; slot++ {
			r := probeRackSlot(connType, rack, slot)
			if r.Status == "accepted" {
				accepted++
			}
			if r.Status == "accepted" || scanAll {
				results = append(results, r)
			}
		}
	}

	out := newOutput()
	if ok, err := out.PrintStructured(results); ok {
		return err
	}

	if len(results) == 0 {
		out.Println("No TSAP accepted")
		return nil
	}

	if out.Format() == FormatRaw {
		for _, r := range results {
			out.Printf("%s %s\n", r.TSAP, r.Status)
		}
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		size := "-"
		if r.TPDUSize > 0 {
			size = strconv.Itoa(r.TPDUSize)
		}
		rows = append(rows, []string{
			strconv.Itoa(int(r.Rack)),
			strconv.Itoa(int(r.Slot)),
			r.TSAP,
			r.Status,
			size,
			r.Error,
		})
	}
	out.Println()
	out.PrintTable([]string{"RACK", "SLOT", "TSAP", "STATUS", "TPDU SIZE", "ERROR"}, rows)
	out.Printf("\n%d of %d candidate(s) accepted\n", accepted, (int(scanRackMax)+1)*(int(scanSlotMax)+1))
	return nil
}

func probeRackSlot(connType, rack, slot uint8) ScanResult {
	tsap := cotp.S7TSAP(connType, rack, slot)
	result := ScanResult{
		Rack: rack,
		Slot: slot,
		TSAP: hex.EncodeToString(tsap),
	}

	client, err := createClient(
		cotp.WithRemoteTSAP(tsap),
		cotp.WithTimeout(scanTimeout),
	)
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout*2)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		result.Status = "error"
		if errors.Is(err, cotp.ErrConnectionRefused) || errors.Is(err, cotp.ErrIO) {
			result.Status = "refused"
		}
		result.Error = err.Error()
		return result
	}
	defer client.Close()

	result.Status = "accepted"
	if cc, ok := client.Negotiated(); ok {
		if size, ok := cc.TPDUSize(); ok {
			result.TPDUSize = size.Bytes()
		}
	}
	return result
}
