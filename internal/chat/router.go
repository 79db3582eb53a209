package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/omochice/toy-room-relay/pkg/protocol"
)

// DefaultHistoryWindow is how many recent messages a joiner receives.
const DefaultHistoryWindow = 50

// User-visible error reasons.
const (
	reasonRoomIDRequired = "Room ID is required"
	reasonRoomNotFound   = "Room not found"
	reasonInvalidJSON    = "Invalid JSON format"
	reasonInternal       = "Internal server error"
)

// Router interprets client envelopes and applies them to rooms.
type Router struct {
	hub    *Hub
	rooms  *Rooms
	window int
}

// NewRouter creates a Router. A non-positive window selects
// DefaultHistoryWindow.
func NewRouter(hub *Hub, rooms *Rooms, window int) *Router {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &Router{hub: hub, rooms: rooms, window: window}
}

// Connect registers a newly upgraded connection and returns its client.
func (r *Router) Connect(conn Conn) *Client {
	client := NewClient(conn)
	r.hub.Register(client)
	log.Printf("Client %s connected from %s", client.ID, conn.RemoteAddr())
	return client
}

// Dispatch handles one decoded text message from client.
func (r *Router) Dispatch(ctx context.Context, client *Client, data []byte) {
	var msg protocol.Message
	if err := msg.Decode(data); err != nil {
		log.Printf("Failed to decode message from %s: %v", client.ID, err)
		r.reply(ctx, client, protocol.NewError(reasonInvalidJSON))
		return
	}

	if !msg.Type.IsRequest() {
		r.reply(ctx, client, protocol.NewError(fmt.Sprintf("Unknown message type: %s", msg.Tag)))
		return
	}

	switch msg.Type {
	case protocol.MessageTypeJoinRoom:
		r.joinRoom(ctx, client, msg)
	case protocol.MessageTypeSendMessage:
		r.post(ctx, client, msg, protocol.MessageTypeNewMessage)
	case protocol.MessageTypeSendVoice:
		r.post(ctx, client, msg, protocol.MessageTypeVoiceMessage)
	default:
		r.reply(ctx, client, protocol.NewError(reasonInternal))
	}
}

// Disconnect removes client from every room it still occupies, tells the
// remaining members, and unregisters it. Only the first call has an effect.
func (r *Router) Disconnect(ctx context.Context, client *Client) {
	if !r.hub.Unregister(client) {
		return
	}

	for m, room := range client.memberships {
		if !room.leaveConn(m.participant, client.Conn) {
			continue
		}
		left := protocol.Message{
			Type:   protocol.MessageTypeUserLeft,
			UserID: m.participant,
			RoomID: m.room,
		}
		if _, err := room.Broadcast(ctx, left, ""); err != nil {
			log.Printf("Failed to announce %s leaving room %s: %v", m.participant, m.room, err)
		}
		log.Printf("User %s left room %s", m.participant, m.room)
	}
	clear(client.memberships)

	log.Printf("Client %s disconnected", client.ID)
}

func (r *Router) joinRoom(ctx context.Context, client *Client, msg protocol.Message) {
	if msg.RoomID == "" {
		r.reply(ctx, client, protocol.NewError(reasonRoomIDRequired))
		return
	}
	userID := msg.UserID
	if userID == "" {
		userID = client.ID
	}

	room := r.rooms.GetOrCreate(msg.RoomID)
	if err := room.Enter(ctx, userID, client.Conn, r.window); err != nil {
		log.Printf("Failed to admit %s to room %s: %v", userID, msg.RoomID, err)
		r.reply(ctx, client, protocol.NewError(reasonInternal))
		return
	}
	client.track(room, userID)

	joined := protocol.Message{
		Type:   protocol.MessageTypeUserJoined,
		UserID: userID,
		RoomID: msg.RoomID,
	}
	if _, err := room.Broadcast(ctx, joined, userID); err != nil {
		log.Printf("Failed to announce %s joining room %s: %v", userID, msg.RoomID, err)
	}

	log.Printf("User %s joined room %s", userID, msg.RoomID)
}

func (r *Router) post(ctx context.Context, client *Client, msg protocol.Message, kind protocol.MessageType) {
	room, ok := r.rooms.Get(msg.RoomID)
	if !ok {
		r.reply(ctx, client, protocol.NewError(reasonRoomNotFound))
		return
	}
	userID := msg.UserID
	if userID == "" {
		userID = client.ID
	}

	out := protocol.Message{
		Type:        kind,
		RoomID:      msg.RoomID,
		UserID:      userID,
		Translation: msg.Translation,
	}
	switch kind {
	case protocol.MessageTypeVoiceMessage:
		out.VoiceData = msg.VoiceData
		out.Transcript = msg.Transcript
	default:
		out.Content = msg.Content
	}

	if _, err := room.Post(ctx, out); err != nil {
		log.Printf("Failed to post %s in room %s: %v", kind, msg.RoomID, err)
		r.reply(ctx, client, protocol.NewError(reasonInternal))
		return
	}

	if kind == protocol.MessageTypeVoiceMessage {
		log.Printf("Voice message from %s in room %s: %s", userID, msg.RoomID, msg.Transcript)
	} else {
		log.Printf("Message from %s in room %s: %s", userID, msg.RoomID, msg.Content)
	}
}

// reply sends msg to client only.
func (r *Router) reply(ctx context.Context, client *Client, msg protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		log.Printf("Failed to encode %s reply for %s: %v", msg.Type, client.ID, err)
		return
	}
	if err := client.Conn.Write(ctx, data); err != nil {
		log.Printf("Failed to send %s reply to %s: %v", msg.Type, client.ID, err)
	}
}
