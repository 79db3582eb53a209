package ws_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/omochice/toy-room-relay/internal/transport/ws"
)

func TestUpgrade(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	mask := [4]byte{5, 6, 7, 8}
	go func() {
		client.Write([]byte(sampleRequest))
	}()

	upgraded := make(chan *ws.Conn, 1)
	go func() {
		conn, err := ws.Upgrade(server, ws.Options{})
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
		}
		upgraded <- conn
	}()

	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 101 Switching Protocols\r\n" {
		t.Errorf("status line = %q", status)
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read response header: %v", err)
		}
		if line == "\r\n" {
			break
		}
	}

	conn := <-upgraded
	if conn == nil {
		t.FailNow()
	}

	go func() {
		client.Write(clientFrame(t, gobwas.OpText, []byte("after upgrade"), &mask))
	}()
	data, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "after upgrade" {
		t.Errorf("Read() = %q, want %q", data, "after upgrade")
	}
}

func TestUpgrade_MissingKey(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	}()

	_, err := ws.Upgrade(server, ws.Options{})
	if !errors.Is(err, ws.ErrMissingKey) {
		t.Errorf("Upgrade() error = %v, want %v", err, ws.ErrMissingKey)
	}
}

func TestConn_Read(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := ws.NewConn(server, nil, ws.Options{})
	mask := [4]byte{0xa, 0xb, 0xc, 0xd}

	go func() {
		client.Write(clientFrame(t, gobwas.OpText, []byte("test message"), &mask))
		client.Close()
	}()

	data, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "test message" {
		t.Errorf("Read() = %q, want %q", string(data), "test message")
	}

	if _, err := conn.Read(context.Background()); err != io.EOF {
		t.Errorf("Read() after peer close error = %v, want io.EOF", err)
	}
}

func TestConn_Read_Deadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := ws.NewConn(server, nil, ws.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.Read(ctx)
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Read() error = %v, want a timeout", err)
	}
}

func TestConn_Write(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := ws.NewConn(server, nil, ws.Options{WriteTimeout: time.Second})

	go func() {
		if err := conn.Write(context.Background(), []byte("hello")); err != nil {
			t.Errorf("Write() error = %v", err)
		}
	}()

	text, err := ws.ReadFrame(client, 1024)
	if err != nil {
		t.Fatalf("client ReadFrame() error = %v", err)
	}
	if text != "hello" {
		t.Errorf("client received %q, want %q", text, "hello")
	}
}

func TestConn_Write_Timeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := ws.NewConn(server, nil, ws.Options{WriteTimeout: 50 * time.Millisecond})

	// Nobody reads from client, so the pipe write blocks until the deadline.
	err := conn.Write(context.Background(), []byte(strings.Repeat("x", 10)))
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Write() error = %v, want a timeout", err)
	}
}

func TestConn_Close(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := ws.NewConn(server, nil, ws.Options{})

	if err := conn.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Error("expected error after close, got nil")
	}
}

func TestConn_RemoteAddr(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := ws.NewConn(server, nil, ws.Options{})

	if addr := conn.RemoteAddr(); addr == "" {
		t.Error("RemoteAddr() returned empty string")
	}
}
