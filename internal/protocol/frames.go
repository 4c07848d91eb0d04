package protocol

import (
	"encoding/json"
	"fmt"

	"chathub/internal/models"
)

// Type discriminates the wire envelope. Every frame is a flat JSON
// object carrying a "type" field plus its payload.
type Type string

const (
	TypePing           Type = "ping"
	TypePong           Type = "pong"
	TypeHandshake      Type = "handshake"
	TypeChatMessage    Type = "chat_message"
	TypeTyping         Type = "typing"
	TypeGetOnlineUsers Type = "get_online_users"
	TypeOnlineUsers    Type = "online_users"
	TypeRoomCreated    Type = "room_created"
	TypeError          Type = "error"
)

// Frame is one decoded wire envelope. The concrete variants below are
// the only implementations; Decode fails on anything else so new frame
// kinds must be handled explicitly rather than falling through.
type Frame interface {
	Kind() Type
}

type Ping struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

type Handshake struct {
	Type     Type   `json:"type"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	RoomID   int    `json:"room_id"`
}

type ChatMessage struct {
	Type      Type   `json:"type"`
	MessageID int    `json:"message_id,omitempty"`
	RoomID    int    `json:"room_id"`
	UserID    int    `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type Typing struct {
	Type   Type `json:"type"`
	UserID int  `json:"user_id"`
	RoomID int  `json:"room_id"`
}

type GetOnlineUsers struct {
	Type Type `json:"type"`
}

type OnlineUsers struct {
	Type      Type                `json:"type"`
	Users     []models.OnlineUser `json:"users"`
	Timestamp string              `json:"timestamp"`
}

type RoomCreated struct {
	Type Type         `json:"type"`
	Room *models.Room `json:"room"`
}

type Error struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (f *Ping) Kind() Type           { return TypePing }
func (f *Pong) Kind() Type           { return TypePong }
func (f *Handshake) Kind() Type      { return TypeHandshake }
func (f *ChatMessage) Kind() Type    { return TypeChatMessage }
func (f *Typing) Kind() Type         { return TypeTyping }
func (f *GetOnlineUsers) Kind() Type { return TypeGetOnlineUsers }
func (f *OnlineUsers) Kind() Type    { return TypeOnlineUsers }
func (f *RoomCreated) Kind() Type    { return TypeRoomCreated }
func (f *Error) Kind() Type          { return TypeError }

func NewPing(timestamp int64) *Ping { return &Ping{Type: TypePing, Timestamp: timestamp} }

func NewPong(timestamp int64) *Pong { return &Pong{Type: TypePong, Timestamp: timestamp} }

func NewError(message, detail string) *Error {
	return &Error{Type: TypeError, Message: message, Detail: detail}
}

// Decode parses one wire envelope into its typed variant. The type tag
// is inspected exactly once, at the connection boundary.
func Decode(data []byte) (Frame, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	var frame Frame
	switch probe.Type {
	case TypePing:
		frame = &Ping{}
	case TypePong:
		frame = &Pong{}
	case TypeHandshake:
		frame = &Handshake{}
	case TypeChatMessage:
		frame = &ChatMessage{}
	case TypeTyping:
		frame = &Typing{}
	case TypeGetOnlineUsers:
		frame = &GetOnlineUsers{}
	case TypeOnlineUsers:
		frame = &OnlineUsers{}
	case TypeRoomCreated:
		frame = &RoomCreated{}
	case TypeError:
		frame = &Error{}
	default:
		return nil, fmt.Errorf("unknown frame type %q", probe.Type)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("malformed %s frame: %w", probe.Type, err)
	}
	return frame, nil
}

// Encode marshals a frame, stamping the type tag so callers can build
// variants as plain literals.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case *Ping:
		v.Type = TypePing
	case *Pong:
		v.Type = TypePong
	case *Handshake:
		v.Type = TypeHandshake
	case *ChatMessage:
		v.Type = TypeChatMessage
	case *Typing:
		v.Type = TypeTyping
	case *GetOnlineUsers:
		v.Type = TypeGetOnlineUsers
	case *OnlineUsers:
		v.Type = TypeOnlineUsers
	case *RoomCreated:
		v.Type = TypeRoomCreated
	case *Error:
		v.Type = TypeError
	}
	return json.Marshal(f)
}
