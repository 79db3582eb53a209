package client_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/toy-room-relay/internal/chat"
	"github.com/omochice/toy-room-relay/internal/client"
	"github.com/omochice/toy-room-relay/internal/transport/tcp"
	"github.com/omochice/toy-room-relay/internal/transport/ws"
	"github.com/omochice/toy-room-relay/pkg/protocol"
)

func startServer(t *testing.T) string {
	t.Helper()
	router := chat.NewRouter(chat.NewHub(), chat.NewRooms(0), 0)
	srv := tcp.New("localhost:0", router, ws.Options{})
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return "ws://" + srv.Addr()
}

func connect(t *testing.T, url, userID string) *client.Client {
	t.Helper()
	c := client.New(url, userID)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

func expect(t *testing.T, c *client.Client, want protocol.MessageType) protocol.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				t.Fatalf("connection closed while waiting for %s", want)
			}
			if msg.Type == want {
				return msg
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestClient_ConnectAndDisconnect(t *testing.T) {
	url := startServer(t)
	c := client.New(url, "alice")

	if c.IsConnected() {
		t.Error("expected IsConnected() to be false before Connect()")
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.IsConnected() {
		t.Error("expected IsConnected() to be true after Connect()")
	}

	c.Disconnect()

	if c.IsConnected() {
		t.Error("expected IsConnected() to be false after Disconnect()")
	}
	if _, ok := <-c.Messages(); ok {
		t.Error("Messages() still open after Disconnect()")
	}
	c.Disconnect()
}

func TestClient_ConnectFailure(t *testing.T) {
	c := client.New("ws://localhost:1", "alice")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("Connect() to a closed port error = nil, want error")
	}
}

func TestClient_SendWithoutConnection(t *testing.T) {
	c := client.New("ws://localhost:1", "alice")
	if err := c.Join("lobby"); !errors.Is(err, client.ErrNotConnected) {
		t.Errorf("Join() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_SendWithoutRoom(t *testing.T) {
	c := connect(t, startServer(t), "alice")

	if err := c.SendMessage("hi", ""); !errors.Is(err, client.ErrNoRoom) {
		t.Errorf("SendMessage() error = %v, want ErrNoRoom", err)
	}
	if err := c.SendVoice("abc", ""); !errors.Is(err, client.ErrNoRoom) {
		t.Errorf("SendVoice() error = %v, want ErrNoRoom", err)
	}
}

func TestClient_Join(t *testing.T) {
	c := connect(t, startServer(t), "alice")

	if err := c.Join("lobby"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	msg := expect(t, c, protocol.MessageTypeRoomJoined)
	if msg.RoomID != "lobby" || msg.UserID != "alice" {
		t.Errorf("room_joined = %+v", msg)
	}
	if len(msg.Participants) != 1 || msg.Participants[0] != "alice" {
		t.Errorf("participants = %v, want [alice]", msg.Participants)
	}
	if c.Room() != "lobby" {
		t.Errorf("Room() = %q, want lobby", c.Room())
	}
}

func TestClient_Conversation(t *testing.T) {
	url := startServer(t)
	alice := connect(t, url, "alice")
	bob := connect(t, url, "bob")

	if err := alice.Join("lobby"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	expect(t, alice, protocol.MessageTypeRoomJoined)
	if err := bob.Join("lobby"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	expect(t, bob, protocol.MessageTypeRoomJoined)
	if msg := expect(t, alice, protocol.MessageTypeUserJoined); msg.UserID != "bob" {
		t.Errorf("user_joined = %+v, want bob", msg)
	}

	if err := alice.SendMessage("hello", "hola"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	for name, c := range map[string]*client.Client{"alice": alice, "bob": bob} {
		msg := expect(t, c, protocol.MessageTypeNewMessage)
		if msg.Content != "hello" || msg.Translation != "hola" || msg.UserID != "alice" {
			t.Errorf("%s new_message = %+v", name, msg)
		}
		if msg.Timestamp.IsZero() {
			t.Errorf("%s new_message has no timestamp", name)
		}
	}

	if err := bob.SendVoice(map[string]any{"codec": "opus", "data": "AAEC"}, "hey"); err != nil {
		t.Fatalf("SendVoice() error = %v", err)
	}
	msg := expect(t, alice, protocol.MessageTypeVoiceMessage)
	if msg.Transcript != "hey" || msg.UserID != "bob" {
		t.Errorf("voice_message = %+v", msg)
	}
	if got := msg.VoiceData.GetStructValue().GetFields()["codec"].GetStringValue(); got != "opus" {
		t.Errorf("voice_data codec = %q, want opus", got)
	}

	bob.Disconnect()
	if msg := expect(t, alice, protocol.MessageTypeUserLeft); msg.UserID != "bob" || msg.RoomID != "lobby" {
		t.Errorf("user_left = %+v", msg)
	}
}

func TestClient_SendVoice_InvalidData(t *testing.T) {
	c := connect(t, startServer(t), "alice")
	if err := c.Join("lobby"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := c.SendVoice(make(chan int), ""); err == nil {
		t.Error("SendVoice() with unencodable data error = nil, want error")
	}
}

func TestClient_AnswersPing(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	pong := make(chan gobwas.Frame, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := gobwas.Upgrade(conn); err != nil {
			return
		}
		if err := gobwas.WriteFrame(conn, gobwas.NewPingFrame([]byte("are you there"))); err != nil {
			return
		}
		if err := wsutil.WriteServerText(conn, []byte(`{"type":"error","message":"after ping"}`)); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		f, err := gobwas.ReadFrame(conn)
		if err != nil {
			return
		}
		pong <- gobwas.UnmaskFrameInPlace(f)
	}()

	c := connect(t, "ws://"+ln.Addr().String(), "alice")

	if msg := expect(t, c, protocol.MessageTypeError); msg.Content != "after ping" {
		t.Errorf("message = %+v, want the text sent after the ping", msg)
	}

	select {
	case f := <-pong:
		if f.Header.OpCode != gobwas.OpPong {
			t.Fatalf("reply opcode = %v, want pong", f.Header.OpCode)
		}
		if string(f.Payload) != "are you there" {
			t.Errorf("pong payload = %q, want ping payload echoed", f.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}
