package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/tilehall/tilehall/internal/game"
	"github.com/tilehall/tilehall/internal/ident"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection represents a WebSocket connection to a client. A connection
// belongs to at most one room at a time.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	gateway   *Gateway
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu          sync.RWMutex
	roomID      string
	playerID    string
	unsubscribe func()
}

// NewConnection creates a new connection wrapper.
func NewConnection(conn *websocket.Conn, gateway *Gateway, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:    conn,
		send:    make(chan *Message, 256),
		gateway: gateway,
		logger:  logger.WithPrefix("conn"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.detach()
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// detach drops the fan-out subscription and, if the connection was bound
// to a player, starts their disconnect-grace timer.
func (c *Connection) detach() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	roomID, playerID := c.roomID, c.playerID
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if roomID != "" && playerID != "" {
		c.gateway.StartGrace(roomID, playerID)
	}
}

// SendMessage queues a message for the client.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed during shutdown.
			c.logger.Debug("send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, closing connection", "player", c.Player())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// Player returns the player id bound to this connection.
func (c *Connection) Player() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// Room returns the room id bound to this connection.
func (c *Connection) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Connection) session() (roomID, playerID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.playerID
}

// readPump handles incoming messages from the client.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client.
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("received message", "type", msg.Type, "player", c.Player())

	switch msg.Type {
	case MessageTypeJoinRoom:
		var data JoinRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse join room data")
			return
		}
		c.handleJoinRoom(data)

	case MessageTypeStartGame:
		c.handleStartGame()

	case MessageTypeSendIntent:
		var data SendIntentData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse intent data")
			return
		}
		c.handleSendIntent(data)

	case MessageTypeLeaveRoom:
		c.handleLeaveRoom()

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// sendError sends a per-socket diagnostic to the client.
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("failed to create error message", "error", err)
		return
	}
	_ = c.SendMessage(errorMsg)
}

func (c *Connection) handleJoinRoom(data JoinRoomData) {
	if data.RoomID == "" {
		c.sendError("invalid_room", "Room id required")
		return
	}
	if data.Nickname == "" {
		c.sendError("invalid_nickname", "Nickname required")
		return
	}

	playerID := data.PlayerID
	if playerID == "" {
		playerID = ident.NewPlayerID()
	} else if err := ident.Validate(playerID); err != nil {
		c.sendError("invalid_player_id", err.Error())
		return
	}

	snap, err := c.gateway.Join(c.ctx, data.RoomID, playerID, data.Nickname)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}

	c.bind(data.RoomID, playerID)
	c.logger.Info("player joined room", "room", data.RoomID, "player", playerID, "nickname", data.Nickname)

	response, _ := NewMessage(MessageTypeJoinedRoom, JoinedRoomData{
		RoomID:   data.RoomID,
		PlayerID: playerID,
	})
	_ = c.SendMessage(response)
	c.sendSnapshot(snap)
}

// bind ties the connection to its room and player and subscribes it to
// the room's state fan-out.
func (c *Connection) bind(roomID, playerID string) {
	cancel := c.gateway.Subscribe(roomID, func(state []byte) {
		table, err := game.Unmarshal(state)
		if err != nil {
			c.logger.Error("decode broadcast state", "room", roomID, "error", err)
			return
		}
		c.sendSnapshot(table.SnapshotFor(playerID))
	})

	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.roomID = roomID
	c.playerID = playerID
	c.unsubscribe = cancel
	c.mu.Unlock()
}

func (c *Connection) sendSnapshot(snap game.Snapshot) {
	msg, err := NewMessage(MessageTypeGameState, snap)
	if err != nil {
		c.logger.Error("failed to create state message", "error", err)
		return
	}
	_ = c.SendMessage(msg)
}

func (c *Connection) handleStartGame() {
	roomID, playerID := c.session()
	if playerID == "" {
		c.sendError("not_in_room", "Join a room first")
		return
	}
	if err := c.gateway.Start(c.ctx, roomID, playerID); err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}

func (c *Connection) handleSendIntent(data SendIntentData) {
	roomID, playerID := c.session()
	if playerID == "" {
		c.sendError("not_in_room", "Join a room first")
		return
	}

	var kind game.IntentKind
	switch strings.ToUpper(data.Type) {
	case "COMMIT":
		kind = game.Commit
	case "CHECK":
		kind = game.Check
	case "FOLD":
		kind = game.Fold
	case "PASS":
		kind = game.Pass
	default:
		c.sendError("invalid_intent", "Unknown intent type: "+data.Type)
		return
	}

	if err := c.gateway.Intent(c.ctx, roomID, playerID, kind, data.Amount); err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}

func (c *Connection) handleLeaveRoom() {
	roomID, playerID := c.session()
	if playerID == "" {
		c.sendError("not_in_room", "Join a room first")
		return
	}

	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.roomID = ""
	c.playerID = ""
	c.mu.Unlock()

	if err := c.gateway.Leave(c.ctx, roomID, playerID); err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}
