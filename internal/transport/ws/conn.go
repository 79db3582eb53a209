package ws

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/pool/pbytes"
	gobwas "github.com/gobwas/ws"
)

// Options tunes an upgraded connection. Zero values select the defaults.
type Options struct {
	MaxRequestSize int
	MaxFrameSize   int64
	WriteTimeout   time.Duration
}

// DefaultMaxFrameSize bounds inbound frame payloads.
const DefaultMaxFrameSize = 16 << 20

// Conn adapts an upgraded net.Conn to chat.Conn.
// Read must only be called from one goroutine; Write is safe for concurrent use.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
	opts Options

	mu sync.Mutex
}

// Upgrade reads the opening request from conn and answers it. The returned
// Conn reads frames from the same buffered reader used for the handshake.
func Upgrade(conn net.Conn, opts Options) (*Conn, error) {
	br := bufio.NewReader(conn)
	req, err := ReadRequest(br, opts.MaxRequestSize)
	if err != nil {
		return nil, fmt.Errorf("read upgrade request: %w", err)
	}
	if err := Negotiate(req, conn); err != nil {
		return nil, err
	}
	return NewConn(conn, br, opts), nil
}

// NewConn wraps an already upgraded connection. br may be nil.
func NewConn(conn net.Conn, br *bufio.Reader, opts Options) *Conn {
	if br == nil {
		br = bufio.NewReader(conn)
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Conn{conn: conn, br: br, opts: opts}
}

// Read implements chat.Conn.
// Returns the text of the next frame. ErrNotText and ErrInvalidUTF8 mark a
// frame that was consumed and should be skipped.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}
	text, err := ReadFrame(c.br, c.opts.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// Write implements chat.Conn.
// Sends data as a single unmasked text frame.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if c.opts.WriteTimeout > 0 {
		if d := time.Now().Add(c.opts.WriteTimeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	buf := pbytes.GetCap(gobwas.MaxHeaderSize + len(data))
	defer pbytes.Put(buf)

	frame := AppendFrame(buf[:0], data)
	_, err := c.conn.Write(frame)
	return err
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
