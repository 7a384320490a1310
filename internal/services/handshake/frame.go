package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	headerSize = 4

	// MaxFrameSize bounds the payload of a single frame
	MaxFrameSize = 64 << 10
)

var ErrFrameTooLarge = errors.New("frame too large")

// TransportError reports a failure to move a frame over the connection.
// The handshake is abandoned without an outcome.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("handshake %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ReadFrame reads a 4-byte big-endian length followed by that many bytes
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}

	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, &TransportError{Op: "read", Err: fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &TransportError{Op: "read", Err: err}
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single write
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return &TransportError{Op: "write", Err: fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))}
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}
