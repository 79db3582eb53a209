// Package tcp accepts raw TCP connections and runs one relay worker per
// connection.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/omochice/toy-room-relay/internal/chat"
	"github.com/omochice/toy-room-relay/internal/transport/ws"
)

// Server accepts TCP connections and hands each one to a worker.
type Server struct {
	address string
	router  *chat.Router
	opts    ws.Options

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates a TCP server that routes through the provided Router.
func New(address string, router *chat.Router, opts ws.Options) *Server {
	return &Server{
		address: address,
		router:  router,
		opts:    opts,
		conns:   make(map[net.Conn]struct{}),
		quit:    make(chan struct{}),
	}
}

// Listen binds the listening socket without accepting yet.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.Printf("Relay server listening on ws://%s", listener.Addr().String())
	return nil
}

// Start listens and then serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections on the bound listener until Stop is called.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("tcp server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Failed to accept TCP connection: %v", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Stop closes the listener and every live connection, then waits for the
// workers to finish their cleanup or for ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	w := newWorker(conn, s.router, s.opts)
	w.run(context.Background())
}

// track records conn unless the server is stopping.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}
