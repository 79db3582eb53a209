package chat_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/omochice/toy-room-relay/internal/chat"
)

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	remoteAddr string

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	closed   bool
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) failWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = nil
}

// envelopes decodes everything written so far into generic JSON objects.
func (m *mockConn) envelopes(t *testing.T) []map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]any, 0, len(m.written))
	for _, data := range m.written {
		var env map[string]any
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("written frame is not a JSON object: %v (%s)", err, data)
		}
		out = append(out, env)
	}
	return out
}

// ofType filters envelopes by their type tag.
func (m *mockConn) ofType(t *testing.T, tag string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, env := range m.envelopes(t) {
		if env["type"] == tag {
			out = append(out, env)
		}
	}
	return out
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)
