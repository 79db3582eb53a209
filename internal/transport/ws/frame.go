// Package ws implements the WebSocket subset spoken by the relay: the
// opening handshake and single-frame text messages.
package ws

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	gobwas "github.com/gobwas/ws"
)

// Frame errors.
var (
	// ErrNotText is returned for any frame whose opcode is not text.
	ErrNotText = errors.New("not a text frame")
	// ErrInvalidUTF8 is returned when a text payload is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8 in text frame")
	// ErrTruncated is returned when a buffer holds less than the declared payload.
	ErrTruncated = errors.New("truncated frame")
	// ErrFrameTooLarge is returned when a frame declares a payload above the limit.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrClosed is returned by ReadFrame when the peer sends a close frame.
	ErrClosed = errors.New("close frame received")
)

// Encode returns text as one complete, unmasked text frame.
func Encode(text string) []byte {
	return AppendFrame(make([]byte, 0, gobwas.MaxHeaderSize+len(text)), []byte(text))
}

// AppendFrame appends an unmasked FIN text frame carrying payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	buf := bytes.NewBuffer(dst)
	// Writes to a bytes.Buffer cannot fail and any int length fits the 64-bit form.
	_ = gobwas.WriteHeader(buf, gobwas.Header{
		Fin:    true,
		OpCode: gobwas.OpText,
		Length: int64(len(payload)),
	})
	buf.Write(payload)
	return buf.Bytes()
}

// Decode decodes p as exactly one frame and returns its text.
// Bytes past the declared payload are ignored.
func Decode(p []byte) (string, error) {
	r := bytes.NewReader(p)
	h, err := gobwas.ReadHeader(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrTruncated
		}
		return "", fmt.Errorf("read frame header: %w", err)
	}
	if h.OpCode != gobwas.OpText {
		return "", ErrNotText
	}
	if h.Length > int64(r.Len()) {
		return "", ErrTruncated
	}

	start := len(p) - r.Len()
	payload := make([]byte, h.Length)
	copy(payload, p[start:])

	return textPayload(h, payload)
}

// ReadFrame reads one whole frame from r and returns its text. Unlike
// Decode it keeps reading until the declared payload has arrived, so frames
// split across network reads are reassembled.
func ReadFrame(r io.Reader, maxSize int64) (string, error) {
	h, err := gobwas.ReadHeader(r)
	if err != nil {
		return "", err
	}
	if maxSize > 0 && h.Length > maxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, h.Length)
	}

	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", err
	}

	switch h.OpCode {
	case gobwas.OpText:
		return textPayload(h, payload)
	case gobwas.OpClose:
		return "", ErrClosed
	default:
		return "", ErrNotText
	}
}

func textPayload(h gobwas.Header, payload []byte) (string, error) {
	if h.Masked {
		gobwas.Cipher(payload, h.Mask, 0)
	}
	if !utf8.Valid(payload) {
		return "", ErrInvalidUTF8
	}
	return string(payload), nil
}
