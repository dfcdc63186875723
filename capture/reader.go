package capture

import (
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Empty fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	PDUType      *uint8

	// ErrorsOnly keeps only frames that failed to decode
	ErrorsOnly bool
}

func (f *Filter) matches(event Event) bool {
	if f.ConnectionID != "" && event.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.PDUType != nil && event.PDUType != *f.PDUType {
		return false
	}
	if f.ErrorsOnly && event.Error == "" {
		return false
	}
	return true
}

// Reader streams events from a capture
type Reader struct {
	decoder *cbor.Decoder
	closer  io.Closer
	filter  Filter
}

// NewReader reads all events from r
func NewReader(r io.Reader, filter Filter) *Reader {
	return &Reader{
		decoder: NewDecoder(r),
		filter:  filter,
	}
}

// OpenFile opens a capture file for reading
func OpenFile(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		decoder: NewDecoder(f),
		closer:  f,
		filter:  filter,
	}, nil
}

// Next returns the next event matching the filter, or io.EOF at the end
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file, if any
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
