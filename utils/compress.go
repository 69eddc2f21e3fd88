package utils

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

const compressMarker = 0x01

// Compress wraps payload in a brotli frame prefixed with a marker byte.
// Payloads below minSize are stored raw with a zero marker so small
// entries skip the codec entirely.
func Compress(payload []byte, minSize int) ([]byte, error) {
	if len(payload) < minSize {
		out := make([]byte, len(payload)+1)
		out[0] = 0x00
		copy(out[1:], payload)
		return out, nil
	}

	var buf bytes.Buffer
	buf.WriteByte(compressMarker)
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decompress(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, nil
	}
	if frame[0] != compressMarker {
		return frame[1:], nil
	}
	r := brotli.NewReader(bytes.NewReader(frame[1:]))
	return io.ReadAll(r)
}
