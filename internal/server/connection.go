package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/game"
	"github.com/balootlabs/baloot/internal/room"
	"github.com/balootlabs/baloot/internal/session"
)

// Connection represents a WebSocket connection to a client.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once

	service *Service
	server  *Server

	rec    *session.Record
	roomID string
	seat   baloot.Seat

	// seq numbers outbound messages; only writePump touches it.
	seq uint64
}

// NewConnection creates a connection wrapper.
func NewConnection(conn *websocket.Conn, logger *log.Logger, server *Server, service *Service) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:    conn,
		send:    make(chan *Message, 256),
		logger:  logger.WithPrefix("conn"),
		ctx:     ctx,
		cancel:  cancel,
		service: service,
		server:  server,
		seat:    -1,
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
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client. A full buffer closes the
// connection rather than blocking the sender.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// Session returns the authenticated session record, if any.
func (c *Connection) Session() *session.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rec
}

func (c *Connection) setSession(rec *session.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = rec
}

// RoomID returns the room this connection is attached to.
func (c *Connection) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

// Seat returns the seat this connection occupies.
func (c *Connection) Seat() baloot.Seat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seat
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

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
			// Broadcast messages are shared between connections; stamp
			// the per-connection sequence on a copy.
			c.seq++
			out := *message
			out.Seq = c.seq
			if err := c.conn.WriteJSON(&out); err != nil {
				c.logger.Error("Failed to write message", "error", err)
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

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type)

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, game.ErrInvalidPayload, "Failed to parse auth data")
			return
		}
		c.handleAuth(msg, data)

	case MessageTypeCreateRoom:
		var data CreateRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, game.ErrInvalidPayload, "Failed to parse create room data")
			return
		}
		c.handleCreateRoom(msg, data)

	case MessageTypeJoinRoom:
		var data JoinRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, game.ErrInvalidPayload, "Failed to parse join room data")
			return
		}
		c.handleJoinRoom(msg, data)

	case MessageTypeAddBot:
		var data AddBotData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.sendError(msg, game.ErrInvalidPayload, "Failed to parse add bot data")
				return
			}
		}
		c.handleAddBot(msg, data)

	case MessageTypeLeaveRoom:
		c.handleLeaveRoom(msg)

	case MessageTypeQueueJoin:
		var data QueueJoinData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.sendError(msg, game.ErrInvalidPayload, "Failed to parse queue join data")
				return
			}
		}
		c.handleQueueJoin(msg, data)

	case MessageTypeQueueLeave:
		c.handleQueueLeave(msg)

	case MessageTypeQueueStatus:
		c.handleQueueStatus(msg)

	case MessageTypeGameAction:
		var data GameActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, game.ErrInvalidPayload, "Failed to parse action data")
			return
		}
		c.handleGameAction(msg, data)

	case MessageTypeChat:
		var data ChatData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, game.ErrInvalidPayload, "Failed to parse chat data")
			return
		}
		c.handleChat(msg, data)

	default:
		c.sendError(msg, game.ErrInvalidPayload, "Unknown message type: "+msg.Type.String())
	}
}

// reply sends a direct response, echoing the request ID.
func (c *Connection) reply(req *Message, messageType MessageType, data interface{}) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create message", "error", err)
		return
	}
	if req != nil {
		msg.RequestID = req.RequestID
	}
	_ = c.SendMessage(msg)
}

func (c *Connection) sendError(req *Message, kind game.ErrorKind, message string) {
	c.reply(req, MessageTypeError, ErrorData{Code: string(kind), Message: message})
}

func (c *Connection) sendErr(req *Message, err error) {
	c.sendError(req, game.KindOf(err), err.Error())
}

// requireAuth fetches the session or rejects the request.
func (c *Connection) requireAuth(req *Message) *session.Record {
	rec := c.Session()
	if rec == nil {
		c.sendError(req, game.ErrSessionUnknown, "Must authenticate first")
	}
	return rec
}

func (c *Connection) handleAuth(msg *Message, data AuthData) {
	rec, token, err := c.service.Authenticate(c.ctx, data.Name, data.Token)
	if err != nil {
		c.sendErr(msg, err)
		return
	}
	c.setSession(rec)
	c.logger.Info("Authenticated", "session", rec.ID, "name", rec.Name)

	resp := AuthResponseData{
		Success:   true,
		SessionID: rec.ID,
		Token:     token,
		Name:      rec.Name,
		Elo:       rec.Elo,
	}

	// If the session was mid-game and the room is still alive, put the
	// player straight back in their seat. A binding to a dead room turns
	// into a ROOM_GONE so the client knows to return to the lobby.
	rm, seat, err := c.service.Resume(c.ctx, rec)
	if rm != nil {
		resp.RoomID = rm.ID()
		c.reply(msg, MessageTypeAuthResponse, resp)
		c.attach(rm, seat)
		return
	}
	c.reply(msg, MessageTypeAuthResponse, resp)
	if err != nil {
		c.sendErr(msg, err)
	}
}

func (c *Connection) handleCreateRoom(msg *Message, data CreateRoomData) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	rm, seat, err := c.service.CreateRoom(c.ctx, rec, data)
	if err != nil {
		c.sendErr(msg, err)
		return
	}
	c.reply(msg, MessageTypeRoomCreated, RoomCreatedData{RoomID: rm.ID(), Seat: seat})
	c.attach(rm, seat)
}

func (c *Connection) handleJoinRoom(msg *Message, data JoinRoomData) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	rm, seat, err := c.service.JoinRoom(c.ctx, rec, data.RoomID)
	if err != nil {
		c.sendErr(msg, err)
		return
	}
	c.reply(msg, MessageTypeRoomJoined, RoomJoinedData{RoomID: rm.ID(), Seat: seat})
	c.attach(rm, seat)
}

func (c *Connection) handleAddBot(msg *Message, data AddBotData) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	if _, err := c.service.AddBot(rec, data); err != nil {
		c.sendErr(msg, err)
	}
	// The room broadcasts the new seat in the next frame.
}

func (c *Connection) handleLeaveRoom(msg *Message) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	c.detach()
	if err := c.service.LeaveRoom(c.ctx, rec); err != nil {
		c.sendErr(msg, err)
	}
}

func (c *Connection) handleQueueJoin(msg *Message, data QueueJoinData) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	stats, err := c.service.QueueJoin(c.ctx, rec, data)
	if err != nil {
		c.sendErr(msg, err)
		return
	}
	c.reply(msg, MessageTypeQueueStatus, QueueStatusData{
		Success:   true,
		QueueSize: stats.Size,
		AvgWaitMs: stats.AvgWait.Milliseconds(),
	})
}

func (c *Connection) handleQueueLeave(msg *Message) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	if err := c.service.QueueLeave(c.ctx, rec); err != nil {
		c.sendErr(msg, err)
		return
	}
	stats, _ := c.service.QueueStatus(c.ctx)
	c.reply(msg, MessageTypeQueueStatus, QueueStatusData{
		Success:   true,
		QueueSize: stats.Size,
		AvgWaitMs: stats.AvgWait.Milliseconds(),
	})
}

func (c *Connection) handleQueueStatus(msg *Message) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	stats, err := c.service.QueueStatus(c.ctx)
	if err != nil {
		c.sendErr(msg, err)
		return
	}
	c.reply(msg, MessageTypeQueueStatus, QueueStatusData{
		Success:   true,
		QueueSize: stats.Size,
		AvgWaitMs: stats.AvgWait.Milliseconds(),
	})
}

func (c *Connection) handleGameAction(msg *Message, data GameActionData) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	action, err := data.ToAction()
	if err != nil {
		c.sendErr(msg, err)
		return
	}
	if err := c.service.Submit(c.ctx, rec, action); err != nil {
		c.sendErr(msg, err)
	}
	// Accepted actions answer through the frame stream, not an ack.
}

func (c *Connection) handleChat(msg *Message, data ChatData) {
	rec := c.requireAuth(msg)
	if rec == nil {
		return
	}
	text := SanitizeChat(data.Text)
	if text == "" {
		return
	}
	if err := c.service.AllowChat(c.ctx, rec.ID); err != nil {
		c.sendErr(msg, err)
		return
	}
	roomID := c.RoomID()
	if roomID == "" {
		c.sendError(msg, game.ErrNotSeated, "Not in a room")
		return
	}
	out, err := NewMessage(MessageTypeChatMessage, ChatMessageData{
		From: rec.Name,
		Seat: c.Seat(),
		Text: text,
	})
	if err != nil {
		return
	}
	c.server.BroadcastToRoom(roomID, out)
}

// attach subscribes the connection to a room's frame stream and forwards
// every frame as a game_update until the room or connection goes away.
func (c *Connection) attach(rm *room.Room, seat baloot.Seat) {
	c.detach()

	rec := c.Session()
	if rec == nil {
		return
	}
	frames, err := rm.Subscribe(rec.ID)
	if err != nil {
		c.logger.Error("Subscribe failed", "room", rm.ID(), "error", err)
		return
	}

	c.mu.Lock()
	c.roomID = rm.ID()
	c.seat = seat
	c.mu.Unlock()

	go func() {
		for {
			select {
			case frame, ok := <-frames:
				if !ok {
					return
				}
				msg, err := NewMessage(MessageTypeGameUpdate, frame)
				if err != nil {
					continue
				}
				_ = c.SendMessage(msg)
				if frame.Speech != nil {
					if say, err := NewMessage(MessageTypeBotSpeak, frame.Speech); err == nil {
						_ = c.SendMessage(say)
					}
				}
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// detach drops the room association and its frame stream.
func (c *Connection) detach() {
	c.mu.Lock()
	roomID := c.roomID
	rec := c.rec
	c.roomID = ""
	c.seat = -1
	c.mu.Unlock()

	if roomID == "" || rec == nil {
		return
	}
	if rm, ok := c.service.RoomBySession(rec.ID); ok && rm.ID() == roomID {
		rm.Unsubscribe(rec.ID)
	}
}
