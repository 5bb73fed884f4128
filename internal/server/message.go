package server

import (
	"encoding/json"
	"time"
)

// MessageType identifies a wire message.
type MessageType string

func (m MessageType) String() string { return string(m) }

// Client → Server
const (
	MessageTypeJoinRoom   MessageType = "join_room"
	MessageTypeStartGame  MessageType = "start_game"
	MessageTypeSendIntent MessageType = "send_intent"
	MessageTypeLeaveRoom  MessageType = "leave_room"
)

// Server → Client
const (
	MessageTypeJoinedRoom MessageType = "joined_room"
	MessageTypeGameState  MessageType = "gameState"
	MessageTypeError      MessageType = "error"
)

// Message is the base WebSocket message structure.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server payloads

type JoinRoomData struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
	// PlayerID reattaches a previous session; empty for a fresh join.
	PlayerID string `json:"playerId,omitempty"`
}

type SendIntentData struct {
	// Type is one of COMMIT, FOLD, CHECK, PASS.
	Type   string `json:"type"`
	Amount int    `json:"amount,omitempty"`
}

// Server → Client payloads

type JoinedRoomData struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
