// Package client is a relay client: it dials the server, joins a room and
// streams events back.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/toy-room-relay/pkg/protocol"
)

// ErrNotConnected is returned when sending before Connect or after Disconnect.
var ErrNotConnected = errors.New("not connected to server")

// ErrNoRoom is returned when sending before joining a room.
var ErrNoRoom = errors.New("no room joined")

// Client represents a relay client.
type Client struct {
	address string
	userID  string

	mu       sync.RWMutex
	conn     *serverConn
	roomID   string
	messages chan protocol.Message
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a client for the ws:// URL address. An empty userID lets the
// server assign the connection identifier.
func New(address, userID string) *Client {
	return &Client{
		address:  address,
		userID:   userID,
		messages: make(chan protocol.Message, 64),
		done:     make(chan struct{}),
	}
}

// Connect dials the server and starts receiving messages.
func (c *Client) Connect(ctx context.Context) error {
	conn, br, _, err := ws.Dial(ctx, c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.mu.Lock()
	c.conn = newServerConn(conn, br)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveMessages()
	return nil
}

// Disconnect closes the connection and waits for the receiver to stop.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Room returns the room most recently joined.
func (c *Client) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

// Join asks to enter roomID. Later sends target this room.
func (c *Client) Join(roomID string) error {
	if err := c.send(protocol.Message{
		Type:   protocol.MessageTypeJoinRoom,
		RoomID: roomID,
		UserID: c.userID,
	}); err != nil {
		return err
	}
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
	return nil
}

// SendMessage posts a text message to the joined room.
func (c *Client) SendMessage(content, translation string) error {
	roomID := c.Room()
	if roomID == "" {
		return ErrNoRoom
	}
	return c.send(protocol.Message{
		Type:        protocol.MessageTypeSendMessage,
		RoomID:      roomID,
		UserID:      c.userID,
		Content:     content,
		Translation: translation,
	})
}

// SendVoice posts a voice payload to the joined room. voice must be
// representable as JSON (see structpb.NewValue).
func (c *Client) SendVoice(voice any, transcript string) error {
	roomID := c.Room()
	if roomID == "" {
		return ErrNoRoom
	}
	data, err := structpb.NewValue(voice)
	if err != nil {
		return fmt.Errorf("invalid voice data: %w", err)
	}
	return c.send(protocol.Message{
		Type:       protocol.MessageTypeSendVoice,
		RoomID:     roomID,
		UserID:     c.userID,
		VoiceData:  data,
		Transcript: transcript,
	})
}

// Messages returns the channel of server events. It is closed once the
// connection ends.
func (c *Client) Messages() <-chan protocol.Message {
	return c.messages
}

func (c *Client) send(msg protocol.Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := conn.WriteText(data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) receiveMessages() {
	defer c.wg.Done()
	defer close(c.messages)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		data, err := conn.ReadText()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
					log.Printf("Error reading from server: %v", err)
				}
			}
			return
		}

		var msg protocol.Message
		if err := msg.Decode(data); err != nil {
			log.Printf("Failed to decode message: %v", err)
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}
