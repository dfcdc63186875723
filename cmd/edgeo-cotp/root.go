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
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/cotp/capture"
	"github.com/edgeo/drivers/cotp/cotp"
)

var (
	cfgFile     string
	host        string
	port        int
	timeout     time.Duration
	outputFmt   string
	verbose     bool
	localTSAP   string
	remoteTSAP  string
	tpduSize    int
	captureFile string

	recorder *capture.StreamRecorder
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "edgeo-cotp",
	Short: "An ISO-on-TCP (RFC 1006 / COTP class 0) client CLI",
	Long: `edgeo-cotp is a command-line tool for talking COTP to ISO-on-TCP peers
such as Siemens S7 PLCs.

It can decode and build COTP frames offline, run the connect handshake
against a device, exchange raw data PDUs and record every frame to a
capture file for later replay.

Examples:
  # Decode a connect request
  edgeo-cotp decode 0de00001000200c0010ac1020100

  # Check which rack/slot a PLC accepts
  edgeo-cotp scan -H 192.168.0.1

  # Send an S7 setup communication payload and print the reply
  edgeo-cotp send -H 192.168.0.1 32010000000000080000f0000001000101e0

  # Record a session and replay it
  edgeo-cotp watch -H 192.168.0.1 --capture session.cbor
  edgeo-cotp replay session.cbor`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logger
		logLevel := slog.LevelInfo
		if viper.GetBool("verbose") {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))

		if path := viper.GetString("capture"); path != "" {
			r, err := capture.NewFileRecorder(path)
			if err != nil {
				return fmt.Errorf("open capture file: %w", err)
			}
			recorder = r
		}
		return nil
	},

	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if recorder != nil {
			return recorder.Close()
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.edgeo-cotp.yaml)")
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "", "Target device IP address or hostname")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", cotp.DefaultPort, "ISO-on-TCP port")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "Dial and I/O timeout")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format (table, json, yaml, raw)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&localTSAP, "local-tsap", "0100", "Local TSAP (hex)")
	rootCmd.PersistentFlags().StringVar(&remoteTSAP, "remote-tsap", "0102", "Remote TSAP (hex, 0102 = PG rack 0 slot 2)")
	rootCmd.PersistentFlags().IntVar(&tpduSize, "tpdu-size", 1024, "Proposed TPDU size in bytes (128-8192)")
	rootCmd.PersistentFlags().StringVar(&captureFile, "capture", "", "Append every frame to this capture file")

	// Bind flags to viper
	viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("local-tsap", rootCmd.PersistentFlags().Lookup("local-tsap"))
	viper.BindPFlag("remote-tsap", rootCmd.PersistentFlags().Lookup("remote-tsap"))
	viper.BindPFlag("tpdu-size", rootCmd.PersistentFlags().Lookup("tpdu-size"))
	viper.BindPFlag("capture", rootCmd.PersistentFlags().Lookup("capture"))

	// Add subcommands
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(interactiveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".edgeo-cotp")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("COTP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// targetAddress returns host:port from the current configuration
func targetAddress() (string, error) {
	h := viper.GetString("host")
	if h == "" {
		return "", fmt.Errorf("host is required (-H or --host)")
	}
	return net.JoinHostPort(h, strconv.Itoa(viper.GetInt("port"))), nil
}

// clientOptions returns the client options shared by all commands that
// talk to a device. Extra options are applied last.
func clientOptions(extra ...cotp.Option) ([]cotp.Option, error) {
	addr, err := targetAddress()
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("invalid TPDU size %d (must be a power of two from 128 to 8192)", viper.GetInt("tpdu-size"))
	}

	opts := []cotp.Option{
		cotp.WithAddress(addr),
		cotp.WithTimeout(viper.GetDuration("timeout")),
		cotp.WithLocalTSAP(local),
		cotp.WithRemoteTSAP(remote),
		cotp.WithTPDUSize(size),
		cotp.WithLogger(logger),
	}
	if recorder != nil {
		opts = append(opts, cotp.WithRecorder(recorder))
	}
	return append(opts, extra...), nil
}

// createClient creates a COTP client with current configuration
func createClient(extra ...cotp.Option) (*cotp.Client, error) {
	opts, err := clientOptions(extra...)
	if err != nil {
		return nil, err
	}
	return cotp.NewClient(opts...)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("edgeo-cotp version 1.0.0")
	},
}
