package tcp

import (
	"context"
	"errors"
	"io"
	"log"
	"net"

	"github.com/omochice/toy-room-relay/internal/chat"
	"github.com/omochice/toy-room-relay/internal/transport/ws"
)

type state int

const (
	stateConnecting state = iota
	stateOpen
	stateClosing
	stateClosed
)

// worker drives one accepted connection through
// connecting -> open -> closing -> closed.
type worker struct {
	raw    net.Conn
	router *chat.Router
	opts   ws.Options

	state  state
	conn   *ws.Conn
	client *chat.Client
}

func newWorker(raw net.Conn, router *chat.Router, opts ws.Options) *worker {
	return &worker{raw: raw, router: router, opts: opts}
}

func (w *worker) run(ctx context.Context) {
	defer w.close()

	if !w.connect() {
		return
	}
	w.serve(ctx)
	w.cleanup(ctx)
}

// connect performs the opening handshake. On failure the connection goes
// straight to closed without ever being registered.
func (w *worker) connect() bool {
	w.state = stateConnecting
	conn, err := ws.Upgrade(w.raw, w.opts)
	if err != nil {
		log.Printf("WebSocket handshake failed for %s: %v", w.raw.RemoteAddr(), err)
		return false
	}
	w.conn = conn
	w.client = w.router.Connect(conn)
	w.state = stateOpen
	return true
}

// serve reads frames until the peer goes away or sends something fatal.
func (w *worker) serve(ctx context.Context) {
	for {
		data, err := w.conn.Read(ctx)
		switch {
		case err == nil:
			if len(data) == 0 {
				continue
			}
			w.router.Dispatch(ctx, w.client, data)
		case errors.Is(err, ws.ErrNotText), errors.Is(err, ws.ErrInvalidUTF8):
			continue
		default:
			if !isPeerGone(err) {
				log.Printf("Error receiving data from %s: %v", w.client.ID, err)
			}
			w.state = stateClosing
			return
		}
	}
}

func (w *worker) cleanup(ctx context.Context) {
	w.state = stateClosing
	w.router.Disconnect(ctx, w.client)
}

func (w *worker) close() {
	if w.state == stateClosed {
		return
	}
	w.raw.Close()
	w.state = stateClosed
}

func isPeerGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ws.ErrClosed)
}
