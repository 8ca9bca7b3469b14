package protocol

import (
	"errors"
	"fmt"

	"github.com/plgd-dev/go-coap/v3/message"
	tcpcoder "github.com/plgd-dev/go-coap/v3/tcp/coder"
)

// maxOptions bounds the options decoded from one frame.
const maxOptions = 32

// EncodeTCP frames m for reliable carriers, including the GATT request
// characteristic.
func EncodeTCP(m message.Message) ([]byte, error) {
	size, err := tcpcoder.DefaultCoder.Size(m)
	if err != nil {
		return nil, fmt.Errorf("failed to size frame: %w", err)
	}
	buf := make([]byte, size)
	n, err := tcpcoder.DefaultCoder.Encode(m, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf[:n], nil
}

// DecodeTCP decodes the frame at the start of data and returns its size.
// It returns message.ErrShortRead while the frame is incomplete.
func DecodeTCP(data []byte) (message.Message, int, error) {
	m := message.Message{Options: make(message.Options, 0, maxOptions)}
	n, err := tcpcoder.DefaultCoder.Decode(data, &m)
	if err != nil {
		return message.Message{}, 0, err
	}
	if n <= 0 || n > len(data) {
		return message.Message{}, 0, fmt.Errorf("invalid frame size %d", n)
	}
	return m, n, nil
}

// FrameReassembler accumulates chunks (e.g. GATT notifications) and
// yields complete frames.
type FrameReassembler struct {
	buf []byte
}

// Write appends a chunk and returns every frame it completes.
func (f *FrameReassembler) Write(chunk []byte) ([]message.Message, error) {
	f.buf = append(f.buf, chunk...)

	var out []message.Message
	for len(f.buf) > 0 {
		// decoded messages alias their input
		data := append([]byte(nil), f.buf...)
		m, n, err := DecodeTCP(data)
		if errors.Is(err, message.ErrShortRead) {
			break
		}
		if err != nil {
			f.buf = nil
			return out, err
		}
		f.buf = f.buf[n:]
		out = append(out, m)
	}
	return out, nil
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (f *FrameReassembler) Buffered() int {
	return len(f.buf)
}
