package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/cotp/cotp"
)

var (
	watchSend string
	watchIdle time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print incoming data frames until interrupted",
	Long: `Watch connects to a device and prints every data frame it sends.
An optional payload is sent first, e.g. to set up a subscription.

Examples:
  # Watch a connection
  edgeo-cotp watch -H 192.168.0.1

  # Send a payload, then watch the replies and record them
  edgeo-cotp watch -H 192.168.0.1 --send 3201... --capture session.cbor`,

	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSend, "send", "", "Payload (hex) to send after connecting")
	watchCmd.Flags().DurationVar(&watchIdle, "idle", 5*time.Second, "Read timeout before the next poll")
}

func runWatch(cmd *cobra.Command, args []string) error {
	var initial []byte
	if watchSend != "" {
		p, err := parseHex(watchSend)
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
		initial = p
	}

	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	// Handle interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping watch...")
		cancel()
		client.Close()
	}()

	addr, _ := targetAddress()
	fmt.Fprintf(os.Stderr, "Watching %s (connection %s)\n", addr, client.ConnectionID())
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

	if initial != nil {
		if err := client.Send(ctx, initial); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	out := newOutput()
	for {
		readCtx, readCancel := context.WithTimeout(ctx, watchIdle)
		dt, err := client.Receive(readCtx)
		readCancel()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return fmt.Errorf("receive: %w", err)
		}

		if err := outputWatchFrame(out, time.Now(), dt); err != nil {
			return err
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// WatchEvent is one received data frame
type WatchEvent struct {
	Time       time.Time `json:"time" yaml:"time"`
	TPDUNumber uint8     `json:"tpdu_number" yaml:"tpdu_number"`
	Last       bool      `json:"last" yaml:"last"`
	Payload    string    `json:"payload" yaml:"payload"`
}

func outputWatchFrame(out *Formatter, t time.Time, dt *cotp.DtData[[]byte]) error {
	event := WatchEvent{
		Time:       t,
		TPDUNumber: dt.TPDUNumber,
		Last:       dt.LastDataUnit,
		Payload:    hex.EncodeToString(dt.Payload),
	}
	if ok, err := out.PrintLine(event); ok {
		return err
	}

	switch out.Format() {
	case FormatRaw:
		out.Println(event.Payload)
	default:
		marker := " "
		if event.Last {
			marker = "*"
		}
		out.Printf("[%s] %s #%-3d %4d bytes  %s\n",
			t.Format("15:04:05.000"),
			marker,
			event.TPDUNumber,
			len(dt.Payload),
			strings.ToUpper(formatHex(dt.Payload)),
		)
	}
	return nil
}
