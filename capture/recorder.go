package capture

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Recorder receives captured frames. Implementations must be safe for
// concurrent use and must not block for long.
type Recorder interface {
	Record(event Event)
}

// NoopRecorder discards all events
type NoopRecorder struct{}

// Record discards the event
func (NoopRecorder) Record(Event) {}

var _ Recorder = NoopRecorder{}

// StreamRecorder writes events as a CBOR sequence to an io.Writer
type StreamRecorder struct {
	mu      sync.Mutex
	encoder *cbor.Encoder
	closer  io.Closer
	closed  bool
}

// NewStreamRecorder creates a recorder writing to w
func NewStreamRecorder(w io.Writer) *StreamRecorder {
	return &StreamRecorder{encoder: NewEncoder(w)}
}

// NewFileRecorder creates a recorder appending to the file at path.
// The file is created with permissions 0644 if it doesn't exist.
func NewFileRecorder(path string) (*StreamRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &StreamRecorder{
		encoder: NewEncoder(f),
		closer:  f,
	}, nil
}

// Record writes an event. Encoding errors are dropped so that capturing
// never disrupts the connection.
func (r *StreamRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	_ = r.encoder.Encode(event)
}

// Close closes the underlying file, if any. It is safe to call Close
// multiple times; later Record calls are ignored.
func (r *StreamRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

var _ Recorder = (*StreamRecorder)(nil)
