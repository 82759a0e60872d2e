// Package mllp moves HL7 messages over the Minimal Lower Layer Protocol:
// each message is wrapped as VT <message> FS CR. It provides a client that
// dials TCP or a serial port per message (or keeps one connection for a
// batch), and a TCP listener that answers each message.
package mllp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

/*
CONTROL CHARACTERS
*/
const (
	VT = 0x0B // Vertical Tab (Start Block)
	FS = 0x1C // File Separator (End Block)
	CR = 0x0D
)

// MaxFrameSize bounds a single inbound message.
const MaxFrameSize = 16 << 20

var (
	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("mllp frame too large")
	// ErrTimeout is returned when the peer does not answer in time.
	ErrTimeout = errors.New("mllp read timeout")
)

// WriteFrame writes payload wrapped in MLLP start and end blocks.
func WriteFrame(w io.Writer, payload []byte) error {
	packet := make([]byte, 0, len(payload)+3)
	packet = append(packet, VT)
	packet = append(packet, payload...)
	packet = append(packet, FS, CR)

	if _, err := w.Write(packet); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame returns the payload of the next frame. Bytes outside a frame
// are discarded. The CR trailing FS is consumed when it is already buffered;
// otherwise the next ReadFrame skips it.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var messageBuffer bytes.Buffer
	inMessage := false

	for {
		b, err := r.ReadByte()
		if err != nil {
			if inMessage && errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read frame: %w", io.ErrUnexpectedEOF)
			}
			return nil, err
		}

		switch b {
		case VT:
			inMessage = true
			messageBuffer.Reset()

		case FS:
			if !inMessage {
				continue
			}
			if r.Buffered() > 0 {
				if next, _ := r.Peek(1); len(next) == 1 && next[0] == CR {
					_, _ = r.ReadByte()
				}
			}
			return messageBuffer.Bytes(), nil

		default:
			if !inMessage {
				continue
			}
			if messageBuffer.Len() >= MaxFrameSize {
				return nil, ErrFrameTooLarge
			}
			messageBuffer.WriteByte(b)
		}
	}
}
