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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/cotp/cotp"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start an interactive COTP session",
	Long: `Interactive mode provides a REPL for exchanging data frames with a device.

Commands:
  connect                 - Run the connect handshake
  close                   - Close the connection
  send <hex>              - Send a payload and wait for the reply
  push <hex>              - Send a payload without waiting
  recv                    - Wait for the next data frame
  decode <hex>            - Decode a frame offline
  status                  - Show connection state and negotiated parameters
  metrics                 - Show client metrics
  help                    - Show help
  exit                    - Exit interactive mode

Examples:
  cotp> connect
  cotp[connected]> send 32010000000000080000f0000001000101e0
  cotp[connected]> metrics`,

	RunE: runInteractive,
}

// session holds the state of one interactive session
type session struct {
	client *cotp.Client
	rl     *readline.Instance
	out    *Formatter
}

func runInteractive(cmd *cobra.Command, args []string) error {
	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "cotp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	out := newOutput()
	out.SetWriter(rl.Stdout())
	s := &session{client: client, rl: rl, out: out}

	fmt.Fprintln(rl.Stdout(), "COTP Interactive Shell")
	fmt.Fprintln(rl.Stdout(), "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(rl.Stdout())

	ctx := context.Background()

	for {
		rl.SetPrompt(s.prompt())

		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := strings.ToLower(parts[0])
		rest := strings.Join(parts[1:], "")

		switch command {
		case "exit", "quit", "q":
			fmt.Fprintln(rl.Stdout(), "Goodbye!")
			return nil

		case "help", "?":
			printInteractiveHelp(rl.Stdout())

		case "connect":
			s.connect(ctx)

		case "close":
			if err := client.Close(); err != nil {
				fmt.Fprintf(rl.Stdout(), "Error: %v\n", err)
			}

		case "send":
			if rest == "" {
				fmt.Fprintln(rl.Stdout(), "Usage: send <hex>")
				continue
			}
			s.exchange(ctx, rest)

		case "push":
			if rest == "" {
				fmt.Fprintln(rl.Stdout(), "Usage: push <hex>")
				continue
			}
			s.push(ctx, rest)

		case "recv":
			s.receive(ctx)

		case "decode":
			if rest == "" {
				fmt.Fprintln(rl.Stdout(), "Usage: decode <hex>")
				continue
			}
			data, err := parseHex(rest)
			if err != nil {
				fmt.Fprintf(rl.Stdout(), "Error: %v\n", err)
				continue
			}
			if err := decodeFrames(out, data); err != nil {
				fmt.Fprintf(rl.Stdout(), "Error: %v\n", err)
			}

		case "status":
			s.status()

		case "metrics":
			s.metrics()

		default:
			fmt.Fprintf(rl.Stdout(), "Unknown command: %s (type 'help' for available commands)\n", command)
		}
	}
}

func (s *session) prompt() string {
	if s.client.State() == cotp.StateConnected {
		return "cotp[connected]> "
	}
	return "cotp> "
}

func printInteractiveHelp(w io.Writer) {
	fmt.Fprint(w, `
Available commands:
  connect          Run the connect handshake with the configured TSAPs
  close            Close the connection
  send <hex>       Send a payload in one data frame and print the reply
  push <hex>       Send a payload without waiting for a reply
  recv             Wait for the next data frame and print it
  decode <hex>     Decode a COTP frame without touching the connection
  status           Show connection state and negotiated parameters
  metrics          Show client metrics
  help             Show this help message
  exit             Exit interactive mode

Hex may contain spaces or colons: "32 01 00 00" and "32:01:00:00" both work.
`+"\n")
}

func (s *session) connect(ctx context.Context) {
	connectCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("timeout")*2)
	defer cancel()

	if err := s.client.Connect(connectCtx); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	s.status()
}

func (s *session) exchange(ctx context.Context, hexPayload string) {
	payload, err := parseHex(hexPayload)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	exCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("timeout"))
	defer cancel()

	reply, err := s.client.Exchange(exCtx, payload)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "< %s\n", formatHex(reply))
}

func (s *session) push(ctx context.Context, hexPayload string) {
	payload, err := parseHex(hexPayload)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("timeout"))
	defer cancel()

	if err := s.client.Send(sendCtx, payload); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "> %s\n", formatHex(payload))
}

func (s *session) receive(ctx context.Context) {
	recvCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("timeout"))
	defer cancel()

	dt, err := s.client.Receive(recvCtx)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if err := outputWatchFrame(s.out, time.Now(), dt); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *session) status() {
	w := s.rl.Stdout()
	fmt.Fprintf(w, "\nState:         %s\n", s.client.State())
	if id := s.client.ConnectionID(); id != "" {
		fmt.Fprintf(w, "Connection ID: %s\n", id)
	}

	cc, ok := s.client.Negotiated()
	if !ok {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "Peer Ref:      %x\n", cc.SourceRef)
	if size, ok := cc.TPDUSize(); ok {
		fmt.Fprintf(w, "TPDU Size:     %s\n", size)
	}
	if tsap, ok := cc.DstTSAP(); ok {
		fmt.Fprintf(w, "Remote TSAP:   %x\n", []byte(tsap))
	}
	fmt.Fprintln(w)
}

func (s *session) metrics() {
	m := s.client.Metrics().Snapshot()
	w := s.rl.Stdout()

	if ok, err := s.out.PrintStructured(m); ok {
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
		}
		return
	}

	fmt.Fprintln(w, "\nClient Metrics:")
	fmt.Fprintf(w, "  Uptime:              %s\n", m.Uptime.Round(time.Second))
	fmt.Fprintf(w, "  Connect Attempts:    %d\n", m.ConnectAttempts)
	fmt.Fprintf(w, "  Connect Successes:   %d\n", m.ConnectSuccesses)
	fmt.Fprintf(w, "  Connect Failures:    %d\n", m.ConnectFailures)
	fmt.Fprintf(w, "  Frames Sent:         %d\n", m.FramesSent)
	fmt.Fprintf(w, "  Frames Received:     %d\n", m.FramesReceived)
	fmt.Fprintf(w, "  Decode Errors:       %d\n", m.DecodeErrors)
	fmt.Fprintf(w, "  Bytes Sent:          %d\n", m.BytesSent)
	fmt.Fprintf(w, "  Bytes Received:      %d\n", m.BytesReceived)

	if m.ConnectLatency.Count > 0 {
		fmt.Fprintf(w, "  Avg Connect Latency: %s\n", m.ConnectLatency.Avg.Round(time.Microsecond))
		fmt.Fprintf(w, "  Min Connect Latency: %s\n", m.ConnectLatency.Min.Round(time.Microsecond))
		fmt.Fprintf(w, "  Max Connect Latency: %s\n", m.ConnectLatency.Max.Round(time.Microsecond))
	}
	fmt.Fprintln(w)
}
