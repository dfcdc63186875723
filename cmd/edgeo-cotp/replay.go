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
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/cotp/capture"
	"github.com/edgeo/drivers/cotp/cotp"
)

var (
	replayConn      string
	replayDirection string
	replayPDUType   string
	replayErrors    bool
	replayFile      string
	replayDecode    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Print the frames stored in a capture file",
	Long: `Replay reads a capture file written with --capture and prints its
frames, optionally filtered.

Examples:
  # Print a whole capture
  edgeo-cotp replay session.cbor

  # Only frames received from the peer that failed to decode
  edgeo-cotp replay session.cbor --direction in --errors

  # Connect PDUs of one connection, as JSON, to a file
  edgeo-cotp replay session.cbor --conn 6f1c... --type cr -o json -f out.json`,

	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayConn, "conn", "", "Only frames of this connection ID")
	replayCmd.Flags().StringVar(&replayDirection, "direction", "", "Only frames in this direction (in, out)")
	replayCmd.Flags().StringVar(&replayPDUType, "type", "", "Only frames of this PDU type (cr, cc, dt or a number)")
	replayCmd.Flags().BoolVar(&replayErrors, "errors", false, "Only frames that failed to decode")
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "Output file (default: stdout)")
	replayCmd.Flags().BoolVar(&replayDecode, "decode", false, "Decode each frame and print its fields")
}

// ReplayEvent is the printable form of a captured frame
type ReplayEvent struct {
	Timestamp    time.Time  `json:"timestamp" yaml:"timestamp"`
	ConnectionID string     `json:"connection_id" yaml:"connection_id"`
	Direction    string     `json:"direction" yaml:"direction"`
	RemoteAddr   string     `json:"remote_addr,omitempty" yaml:"remote_addr,omitempty"`
	Type         string     `json:"type,omitempty" yaml:"type,omitempty"`
	Data         string     `json:"data" yaml:"data"`
	Error        string     `json:"error,omitempty" yaml:"error,omitempty"`
	Frame        *FrameView `json:"frame,omitempty" yaml:"frame,omitempty"`
}

func parsePDUType(s string) (uint8, error) {
	switch strings.ToLower(s) {
	case "cr":
		return uint8(cotp.PDUTypeConnectRequest), nil
	case "cc":
		return uint8(cotp.PDUTypeConnectConfirm), nil
	case "dt":
		return uint8(cotp.PDUTypeDtData), nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown PDU type: %s", s)
	}
	return uint8(n), nil
}

func replayFilter() (capture.Filter, error) {
	filter := capture.Filter{
		ConnectionID: replayConn,
		ErrorsOnly:   replayErrors,
	}
	if replayDirection != "" {
		d, ok := capture.ParseDirection(replayDirection)
		if !ok {
			return filter, fmt.Errorf("invalid direction: %s (expected in or out)", replayDirection)
		}
		filter.Direction = &d
	}
	if replayPDUType != "" {
		t, err := parsePDUType(replayPDUType)
		if err != nil {
			return filter, err
		}
		filter.PDUType = &t
	}
	return filter, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	filter, err := replayFilter()
	if err != nil {
		return err
	}

	r, err := capture.OpenFile(args[0], filter)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer r.Close()

	out := newOutput()
	if replayFile != "" {
		f, err := os.Create(replayFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out.SetWriter(f)
	}

	dec := cotp.NewDecoder[[]byte](cotp.BytesCodec{})
	events := []ReplayEvent{}
	var rows [][]string

	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read capture: %w", err)
		}

		re := ReplayEvent{
			Timestamp:    event.Timestamp,
			ConnectionID: event.ConnectionID,
			Direction:    event.Direction.String(),
			RemoteAddr:   event.RemoteAddr,
			Data:         hex.EncodeToString(event.Data),
			Error:        event.Error,
		}
		if event.PDUType != 0 {
			re.Type = cotp.PDUType(event.PDUType).String()
		}
		if replayDecode && event.Error == "" {
			if frame, n, err := dec.DecodeFrom(event.Data); err == nil && frame != nil {
				view := viewFrame(frame, n)
				re.Frame = &view
			}
		}

		switch out.Format() {
		case FormatJSON, FormatYAML:
			events = append(events, re)
		case FormatRaw:
			out.Printf("%s %s\n", strings.ToLower(re.Direction), re.Data)
		default:
			typ := re.Type
			if typ == "" {
				typ = "-"
			}
			detail := formatHex(event.Data)
			if re.Error != "" {
				detail = re.Error
			} else if re.Frame != nil {
				detail = summarizeFrame(re.Frame)
			}
			rows = append(rows, []string{
				re.Timestamp.Format("15:04:05.000"),
				shortID(re.ConnectionID),
				re.Direction,
				typ,
				strconv.Itoa(len(event.Data)),
				detail,
			})
		}
	}

	if ok, err := out.PrintStructured(events); ok {
		return err
	}
	if out.Format() == FormatRaw {
		return nil
	}
	if len(rows) == 0 {
		out.Println("No frames")
		return nil
	}
	out.PrintTable([]string{"TIME", "CONN", "DIR", "TYPE", "BYTES", "DETAIL"}, rows)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func summarizeFrame(v *FrameView) string {
	if v.TPDUNumber != nil {
		return fmt.Sprintf("tpdu=%d last=%t payload=%s", *v.TPDUNumber, *v.LastDataUnit, v.Payload)
	}
	parts := []string{"dst-ref=" + v.DestinationRef, "src-ref=" + v.SourceRef}
	for _, p := range v.Parameters {
		parts = append(parts, strings.TrimSuffix(p.Code+"="+p.Value, "="))
	}
	return strings.Join(parts, " ")
}
