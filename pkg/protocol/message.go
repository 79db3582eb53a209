// Package protocol defines the JSON envelope exchanged between relay clients
// and the server.
package protocol

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageType represents the type discriminator of an envelope.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota

	// Client requests.
	MessageTypeJoinRoom
	MessageTypeSendMessage
	MessageTypeSendVoice

	// Server events.
	MessageTypeRoomJoined
	MessageTypeUserJoined
	MessageTypeUserLeft
	MessageTypeNewMessage
	MessageTypeVoiceMessage
	MessageTypeError
)

// ErrUnknownType is returned when encoding a message without a known type.
var ErrUnknownType = errors.New("unknown message type")

// String returns the wire tag of the MessageType.
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeJoinRoom:
		return "join_room"
	case MessageTypeSendMessage:
		return "send_message"
	case MessageTypeSendVoice:
		return "send_voice"
	case MessageTypeRoomJoined:
		return "room_joined"
	case MessageTypeUserJoined:
		return "user_joined"
	case MessageTypeUserLeft:
		return "user_left"
	case MessageTypeNewMessage:
		return "new_message"
	case MessageTypeVoiceMessage:
		return "voice_message"
	case MessageTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// IsRequest reports whether clients are allowed to send the type.
func (mt MessageType) IsRequest() bool {
	switch mt {
	case MessageTypeJoinRoom, MessageTypeSendMessage, MessageTypeSendVoice:
		return true
	default:
		return false
	}
}

// ParseMessageType maps a wire tag to its MessageType.
// Unrecognized tags map to MessageTypeUnknown.
func ParseMessageType(tag string) MessageType {
	for mt := MessageTypeJoinRoom; mt <= MessageTypeError; mt++ {
		if mt.String() == tag {
			return mt
		}
	}
	return MessageTypeUnknown
}

// Message is a relay envelope. Which fields travel on the wire depends on
// Type; see toStruct.
type Message struct {
	Type MessageType
	// Tag is the raw "type" value as received. Only set by Decode.
	Tag string

	RoomID      string
	UserID      string
	Content     string
	Translation string
	Transcript  string
	// VoiceData is relayed as-is and never inspected.
	VoiceData *structpb.Value

	Participants []string
	History      []Message

	Timestamp time.Time
}

// NewError builds an error envelope carrying a user-visible reason.
func NewError(reason string) Message {
	return Message{Type: MessageTypeError, Content: reason}
}

// Encode encodes the message into JSON bytes.
func (m *Message) Encode() ([]byte, error) {
	s, err := m.toStruct()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes JSON bytes into the message. Any JSON object decodes;
// an unrecognized "type" leaves Type as MessageTypeUnknown with Tag set.
func (m *Message) Decode(data []byte) error {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := m.fromStruct(s); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

func (m *Message) toStruct() (*structpb.Struct, error) {
	f := map[string]*structpb.Value{
		"type": structpb.NewStringValue(m.Type.String()),
	}

	switch m.Type {
	case MessageTypeJoinRoom:
		f["room_id"] = structpb.NewStringValue(m.RoomID)
		setOptional(f, "user_id", m.UserID)
	case MessageTypeSendMessage:
		f["room_id"] = structpb.NewStringValue(m.RoomID)
		setOptional(f, "user_id", m.UserID)
		f["message"] = structpb.NewStringValue(m.Content)
		setOptional(f, "translation", m.Translation)
	case MessageTypeSendVoice:
		f["room_id"] = structpb.NewStringValue(m.RoomID)
		setOptional(f, "user_id", m.UserID)
		f["voice_data"] = voiceValue(m.VoiceData)
		setOptional(f, "transcript", m.Transcript)
		setOptional(f, "translation", m.Translation)
	case MessageTypeRoomJoined:
		f["room_id"] = structpb.NewStringValue(m.RoomID)
		f["user_id"] = structpb.NewStringValue(m.UserID)
		participants := make([]*structpb.Value, 0, len(m.Participants))
		for _, p := range m.Participants {
			participants = append(participants, structpb.NewStringValue(p))
		}
		f["participants"] = structpb.NewListValue(&structpb.ListValue{Values: participants})
		history := make([]*structpb.Value, 0, len(m.History))
		for i := range m.History {
			s, err := m.History[i].toStruct()
			if err != nil {
				return nil, err
			}
			history = append(history, structpb.NewStructValue(s))
		}
		f["messages"] = structpb.NewListValue(&structpb.ListValue{Values: history})
	case MessageTypeUserJoined, MessageTypeUserLeft:
		f["user_id"] = structpb.NewStringValue(m.UserID)
		f["room_id"] = structpb.NewStringValue(m.RoomID)
	case MessageTypeNewMessage:
		f["room_id"] = structpb.NewStringValue(m.RoomID)
		f["user_id"] = structpb.NewStringValue(m.UserID)
		f["message"] = structpb.NewStringValue(m.Content)
		f["translation"] = structpb.NewStringValue(m.Translation)
		f["timestamp"] = structpb.NewStringValue(formatTimestamp(m.Timestamp))
	case MessageTypeVoiceMessage:
		f["room_id"] = structpb.NewStringValue(m.RoomID)
		f["user_id"] = structpb.NewStringValue(m.UserID)
		f["voice_data"] = voiceValue(m.VoiceData)
		f["transcript"] = structpb.NewStringValue(m.Transcript)
		f["translation"] = structpb.NewStringValue(m.Translation)
		f["timestamp"] = structpb.NewStringValue(formatTimestamp(m.Timestamp))
	case MessageTypeError:
		f["message"] = structpb.NewStringValue(m.Content)
	case MessageTypeUnknown:
		return nil, ErrUnknownType
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(m.Type))
	}

	return &structpb.Struct{Fields: f}, nil
}

func (m *Message) fromStruct(s *structpb.Struct) error {
	f := s.GetFields()

	m.Tag = f["type"].GetStringValue()
	m.Type = ParseMessageType(m.Tag)
	m.RoomID = f["room_id"].GetStringValue()
	m.UserID = f["user_id"].GetStringValue()
	m.Content = f["message"].GetStringValue()
	m.Translation = f["translation"].GetStringValue()
	m.Transcript = f["transcript"].GetStringValue()
	m.VoiceData = f["voice_data"]

	m.Participants = nil
	for _, v := range f["participants"].GetListValue().GetValues() {
		m.Participants = append(m.Participants, v.GetStringValue())
	}

	m.History = nil
	for _, v := range f["messages"].GetListValue().GetValues() {
		var entry Message
		if err := entry.fromStruct(v.GetStructValue()); err != nil {
			return err
		}
		m.History = append(m.History, entry)
	}

	// Requests are stamped by the server, so a client timestamp is ignored.
	m.Timestamp = time.Time{}
	if ts := f["timestamp"].GetStringValue(); ts != "" && !m.Type.IsRequest() && m.Type != MessageTypeUnknown {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		m.Timestamp = t
	}
	return nil
}

func setOptional(f map[string]*structpb.Value, key, value string) {
	if value != "" {
		f[key] = structpb.NewStringValue(value)
	}
}

func voiceValue(v *structpb.Value) *structpb.Value {
	if v == nil {
		return structpb.NewNullValue()
	}
	return v
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
