package ws

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/gobwas/httphead"
)

// Handshake errors.
var (
	// ErrMissingKey is returned when the request carries no Sec-WebSocket-Key.
	ErrMissingKey = errors.New("missing Sec-WebSocket-Key header")
	// ErrRequestTooLarge is returned when the request head exceeds the limit.
	ErrRequestTooLarge = errors.New("upgrade request too large")
)

// DefaultMaxRequestSize bounds the request head read by ReadRequest.
const DefaultMaxRequestSize = 8192

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// The header name is matched byte for byte.
var secKeyPrefix = []byte("Sec-WebSocket-Key:")

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Negotiate completes the opening handshake for the request head in request.
// On success the 101 response is written to w. When the key is missing
// nothing is written and ErrMissingKey is returned.
func Negotiate(request []byte, w io.Writer) error {
	key, ok := findKey(request)
	if !ok {
		return ErrMissingKey
	}

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n" +
		"\r\n"
	if _, err := io.WriteString(w, resp); err != nil {
		return fmt.Errorf("write upgrade response: %w", err)
	}
	return nil
}

// ReadRequest reads an HTTP request head, up to and including the blank
// line, from br. Frame bytes sent right after the head stay buffered in br.
func ReadRequest(br *bufio.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestSize
	}

	var head []byte
	lineStart := 0
	for {
		chunk, err := br.ReadSlice('\n')
		head = append(head, chunk...)
		if len(head) > maxSize {
			return nil, ErrRequestTooLarge
		}
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err != nil:
			return nil, err
		}
		if len(bytes.TrimRight(head[lineStart:], "\r\n")) == 0 {
			return head, nil
		}
		lineStart = len(head)
	}
}

func findKey(request []byte) (string, bool) {
	for _, line := range bytes.Split(request, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, secKeyPrefix) {
			continue
		}
		_, v, ok := httphead.ParseHeaderLine(line)
		if !ok || len(v) == 0 {
			continue
		}
		return string(v), true
	}
	return "", false
}
