package client

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// serverConn frames text messages over a dialed connection, client side.
// Every write, including control replies made while reading, holds mu.
type serverConn struct {
	conn    net.Conn
	rd      *wsutil.Reader
	control wsutil.FrameHandlerFunc

	mu sync.Mutex
}

// newServerConn wraps conn. br holds any bytes the server sent right after
// the handshake and may be nil.
func newServerConn(conn net.Conn, br *bufio.Reader) *serverConn {
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}

	sc := &serverConn{conn: conn}
	reply := wsutil.ControlFrameHandler(sc.conn, ws.StateClientSide)
	sc.control = func(h ws.Header, r io.Reader) error {
		sc.mu.Lock()
		defer sc.mu.Unlock()
		return reply(h, r)
	}
	sc.rd = &wsutil.Reader{
		Source:         r,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: sc.control,
	}
	return sc
}

// WriteText sends one masked text frame.
func (sc *serverConn) WriteText(data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return wsutil.WriteClientText(sc.conn, data)
}

// ReadText blocks for the next text message from the server. Control frames
// are answered on the way; binary messages are skipped.
func (sc *serverConn) ReadText() ([]byte, error) {
	for {
		h, err := sc.rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if h.OpCode.IsControl() {
			if err := sc.control(h, sc.rd); err != nil {
				return nil, err
			}
			continue
		}
		if h.OpCode != ws.OpText {
			if err := sc.rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(sc.rd)
	}
}

// Close sends a normal close frame and closes the socket.
func (sc *serverConn) Close() error {
	sc.mu.Lock()
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	_ = ws.WriteFrame(sc.conn, ws.MaskFrameInPlace(ws.NewCloseFrame(body)))
	sc.mu.Unlock()
	return sc.conn.Close()
}
