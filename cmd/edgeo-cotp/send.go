package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sendNoReply bool

var sendCmd = &cobra.Command{
	Use:   "send <payload-hex>...",
	Short: "Send a payload in a data frame and print the reply",
	Long: `Send connects to the device, sends the payload in a single data frame
(TPDU number 0, last data unit) and prints the payload of the next data
frame received.

Examples:
  # S7 setup communication
  edgeo-cotp send -H 192.168.0.1 32010000000000080000f0000001000101e0

  # Fire and forget
  edgeo-cotp send -H 192.168.0.1 --no-reply 0102`,

	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendNoReply, "no-reply", false, "Do not wait for a reply")
}

func runSend(cmd *cobra.Command, args []string) error {
	payload, err := parseHex(strings.Join(args, ""))
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout")*3)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	if sendNoReply {
		if err := client.Send(ctx, payload); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	reply, err := client.Exchange(ctx, payload)
	if err != nil {
		return fmt.Errorf("exchange: %w", err)
	}

	out := newOutput()
	result := struct {
		Request string `json:"request" yaml:"request"`
		Reply   string `json:"reply" yaml:"reply"`
	}{
		Request: hex.EncodeToString(payload),
		Reply:   hex.EncodeToString(reply),
	}
	if ok, err := out.PrintStructured(result); ok {
		return err
	}
	if out.Format() == FormatRaw {
		out.Println(result.Reply)
		return nil
	}

	out.Printf("Sent:     %s\n", formatHex(payload))
	out.Printf("Received: %s\n", formatHex(reply))
	return nil
}
