package kineticserver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Protocol limits.
const (
	// DefaultMaxMessageSize limits the encoded message of one frame (1 MiB).
	DefaultMaxMessageSize = 1 << 20
	// DefaultMaxValueSize limits the value of one frame (1 MiB).
	DefaultMaxValueSize = 1 << 20
)

const (
	frameMagic     = 'F'
	frameHeaderLen = 9
)

var (
	ErrProtocol      = errors.New("kinetic: protocol error")
	ErrLimitExceeded = errors.New("kinetic: limit exceeded")
)

// Frame is one unit on the wire: 'F', be32 message length, be32 value
// length, message bytes, value bytes.
type Frame struct {
	Message []byte
	Value   []byte
}

// ReadFrame reads one frame from r, rejecting sizes above the limits
// before allocating.
func ReadFrame(r io.Reader, maxMessage, maxValue int) (*Frame, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if hdr[0] != frameMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%02x", ErrProtocol, hdr[0])
	}

	msgLen := binary.BigEndian.Uint32(hdr[1:5])
	valLen := binary.BigEndian.Uint32(hdr[5:9])
	if uint64(msgLen) > uint64(maxMessage) {
		return nil, fmt.Errorf("%w: message length %d exceeds limit %d", ErrLimitExceeded, msgLen, maxMessage)
	}
	if uint64(valLen) > uint64(maxValue) {
		return nil, fmt.Errorf("%w: value length %d exceeds limit %d", ErrLimitExceeded, valLen, maxValue)
	}

	f := &Frame{Message: make([]byte, msgLen)}
	if _, err := io.ReadFull(r, f.Message); err != nil {
		return nil, unexpectedEOF(err)
	}
	if valLen > 0 {
		f.Value = make([]byte, valLen)
		if _, err := io.ReadFull(r, f.Value); err != nil {
			return nil, unexpectedEOF(err)
		}
	}
	return f, nil
}

// WriteFrame writes f to w.
func WriteFrame(w io.Writer, f *Frame) error {
	var hdr [frameHeaderLen]byte
	hdr[0] = frameMagic
	binary.BigEndian.PutUint32(hdr[1:5], uint32(len(f.Message)))
	binary.BigEndian.PutUint32(hdr[5:9], uint32(len(f.Value)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(f.Message); err != nil {
		return err
	}
	if len(f.Value) > 0 {
		if _, err := w.Write(f.Value); err != nil {
			return err
		}
	}
	return nil
}

// A frame cut short after its header is a truncated frame, not a clean close.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
