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

package cotp

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/edgeo/drivers/cotp/capture"
)

// clientOptions holds configuration for the COTP client
type clientOptions struct {
	// Peer
	address string

	// Connection setup
	localTSAP  []byte
	remoteTSAP []byte
	tpduSize   TPDUSize
	sourceRef  uint16

	// Timeouts
	timeout time.Duration

	// Observability
	logger   *slog.Logger
	recorder capture.Recorder
}

// defaultOptions returns the default client options: a PG connection to
// rack 0, slot 2 proposing 1024 byte TPDUs.
func defaultOptions() *clientOptions {
	return &clientOptions{
		localTSAP:  []byte{0x01, 0x00},
		remoteTSAP: S7TSAP(ConnectionTypePG, 0, 2),
		tpduSize:   TPDUSize1024,
		sourceRef:  0x0001,
		timeout:    3 * time.Second,
		logger:     slog.Default(),
		recorder:   capture.NoopRecorder{},
	}
}

// Option is a functional option for configuring the client
type Option func(*clientOptions)

// WithAddress sets the peer address (host or host:port, default port 102)
func WithAddress(addr string) Option {
	return func(o *clientOptions) {
		o.address = addr
	}
}

// WithLocalTSAP sets the calling TSAP sent in the connect request
func WithLocalTSAP(tsap []byte) Option {
	return func(o *clientOptions) {
		o.localTSAP = bytes.Clone(tsap)
	}
}

// WithRemoteTSAP sets the called TSAP sent in the connect request
func WithRemoteTSAP(tsap []byte) Option {
	return func(o *clientOptions) {
		o.remoteTSAP = bytes.Clone(tsap)
	}
}

// WithRackSlot sets the remote TSAP for a Siemens CPU at rack and slot
func WithRackSlot(connType, rack, slot uint8) Option {
	return func(o *clientOptions) {
		o.remoteTSAP = S7TSAP(connType, rack, slot)
	}
}

// WithTPDUSize sets the TPDU size proposed in the connect request
func WithTPDUSize(size TPDUSize) Option {
	return func(o *clientOptions) {
		o.tpduSize = size
	}
}

// WithSourceRef sets the source reference of the connect request
func WithSourceRef(ref uint16) Option {
	return func(o *clientOptions) {
		o.sourceRef = ref
	}
}

// WithTimeout sets the dial, read and write timeout used when the
// context carries no deadline
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithRecorder captures every frame sent and received
func WithRecorder(r capture.Recorder) Option {
	return func(o *clientOptions) {
		o.recorder = r
	}
}
