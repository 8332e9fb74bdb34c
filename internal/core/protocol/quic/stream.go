package quic

import (
	"encoding/binary"
	"io"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/pkg/errors"
)

// Frames on the stream are an 8-byte big-endian length followed by one JSON
// document.
const frameHeaderSize = 8

// DefaultMaxFrameSize bounds inbound frames when Options.MaxFrameSize is zero.
const DefaultMaxFrameSize = 1 << 20

// WriteFrame writes payload as one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint64(frame, uint64(len(payload)))
	copy(frame[frameHeaderSize:], payload)

	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

// ReadFrame reads one frame. It returns io.EOF untouched when the stream ends
// on a frame boundary.
func ReadFrame(r io.Reader, maxSize uint64) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read frame header")
	}

	length := binary.BigEndian.Uint64(header)
	if maxSize > 0 && length > maxSize {
		return nil, errors.Wrapf(protocol.ErrFrameTooLarge, "frame of %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "failed to read frame body")
	}
	return payload, nil
}
