package server

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/game"
	"github.com/balootlabs/baloot/internal/room"
)

// MessageType tags a WebSocket envelope.
type MessageType string

const (
	// Client → server.
	MessageTypeAuth        MessageType = "auth"
	MessageTypeCreateRoom  MessageType = "create_room"
	MessageTypeJoinRoom    MessageType = "join_room"
	MessageTypeAddBot      MessageType = "add_bot"
	MessageTypeLeaveRoom   MessageType = "leave_room"
	MessageTypeQueueJoin   MessageType = "queue_join"
	MessageTypeQueueLeave  MessageType = "queue_leave"
	MessageTypeQueueStatus MessageType = "queue_status"
	MessageTypeGameAction  MessageType = "game_action"
	MessageTypeChat        MessageType = "chat"

	// Server → client. QueueStatus doubles as the ack for every queue
	// request.
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeRoomCreated  MessageType = "room_created"
	MessageTypeRoomJoined   MessageType = "room_joined"
	MessageTypeRoomClosed   MessageType = "room_closed"
	MessageTypeGameUpdate   MessageType = "game_update"
	MessageTypeMatchFound   MessageType = "match_found"
	MessageTypeChatMessage  MessageType = "chat_message"
	MessageTypeBotSpeak     MessageType = "bot_speak"
	MessageTypeToast        MessageType = "toast"
	MessageTypeError        MessageType = "error"
)

func (t MessageType) String() string { return string(t) }

// Message is the base WebSocket envelope. RequestID, when the client
// sets one, is echoed on the direct response so callers can match acks.
// Seq is stamped by the connection's writer: strictly increasing per
// connection in delivery order, so clients can drop replayed messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
}

// NewMessage creates a message with the current timestamp.
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

// Client → server payloads.

type AuthData struct {
	Name  string `json:"name"`
	Token string `json:"token,omitempty"`
}

type CreateRoomData struct {
	TurnSeconds   int    `json:"turnSeconds,omitempty"`
	TargetScore   int    `json:"targetScore,omitempty"`
	StrictMode    *bool  `json:"strictMode,omitempty"`
	SoundEnabled  *bool  `json:"soundEnabled,omitempty"`
	BotDifficulty string `json:"botDifficulty,omitempty"`
}

type JoinRoomData struct {
	RoomID string `json:"roomId"`
}

// AddBotData fills a seat with a bot. A missing seat picks the lowest
// free one; a missing difficulty inherits the room's setting.
type AddBotData struct {
	Seat       *int   `json:"seat,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// QueueJoinData is the optional queue_join payload. Either field, when
// set, overrides the session's own value for this queue entry.
type QueueJoinData struct {
	PlayerName string `json:"playerName,omitempty"`
	Elo        int    `json:"elo,omitempty"`
}

type ChatData struct {
	Text string `json:"text"`
}

// GameActionData is the wire form of every in-game move. Kind selects
// which of the optional fields matter.
type GameActionData struct {
	Kind      string `json:"kind"`
	Bid       string `json:"bid,omitempty"`
	Suit      string `json:"suit,omitempty"`
	CardID    int    `json:"cardId,omitempty"`
	Level     int    `json:"level,omitempty"`
	Open      bool   `json:"open,omitempty"`
	Project   string `json:"project,omitempty"`
	Cards     []int  `json:"cards,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Option    string `json:"option,omitempty"`
	Violation string `json:"violation,omitempty"`
	TrickIdx  *int   `json:"trickIdx,omitempty"`
	TrickCard int    `json:"trickCard,omitempty"`
}

// ToAction converts the wire form into a game action. It validates only
// shape; the rules live in the game machine.
func (d GameActionData) ToAction() (game.Action, error) {
	a := game.Action{
		Kind:      game.ActionKind(d.Kind),
		Bid:       game.BidCall(d.Bid),
		CardID:    d.CardID,
		Level:     baloot.DoublingLevel(d.Level),
		Open:      d.Open,
		Answer:    game.SawaAnswer(d.Answer),
		Option:    game.QaydOption(d.Option),
		Violation: game.ViolationType(d.Violation),
		TrickCard: d.TrickCard,
		TrickIdx:  -1,
	}
	if d.TrickIdx != nil {
		a.TrickIdx = *d.TrickIdx
	}
	if d.Suit != "" {
		suit, err := baloot.ParseSuit(d.Suit)
		if err != nil {
			return game.Action{}, game.NewError(game.ErrInvalidPayload, "unknown suit %q", d.Suit)
		}
		a.Suit = suit
	}
	if d.Project != "" {
		pt, ok := baloot.ParseProjectType(d.Project)
		if !ok {
			return game.Action{}, game.NewError(game.ErrInvalidPayload, "unknown project %q", d.Project)
		}
		a.Project = pt
	}
	for _, id := range d.Cards {
		c, err := baloot.CardByID(id)
		if err != nil {
			return game.Action{}, game.NewError(game.ErrInvalidPayload, "bad card id %d", id)
		}
		a.Cards = append(a.Cards, c)
	}
	switch a.Kind {
	case game.ActionBid, game.ActionPlay, game.ActionDouble, game.ActionVariant,
		game.ActionDeclareProject, game.ActionDeclareAkka, game.ActionClaimSawa,
		game.ActionSawaResponse, game.ActionQaydTrigger, game.ActionQaydMenu,
		game.ActionQaydViolation, game.ActionQaydCrime, game.ActionQaydProof,
		game.ActionQaydConfirm:
		return a, nil
	default:
		return game.Action{}, game.NewError(game.ErrInvalidPayload, "unknown action kind %q", d.Kind)
	}
}

// Server → client payloads.

type AuthResponseData struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Token     string `json:"token,omitempty"`
	Name      string `json:"name,omitempty"`
	Elo       int    `json:"elo,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type RoomCreatedData struct {
	RoomID string      `json:"roomId"`
	Seat   baloot.Seat `json:"seat"`
}

type RoomJoinedData struct {
	RoomID string      `json:"roomId"`
	Seat   baloot.Seat `json:"seat"`
}

type RoomClosedData struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type MatchFoundData struct {
	RoomID string      `json:"roomId"`
	Seat   baloot.Seat `json:"seat"`
}

type ChatMessageData struct {
	From string      `json:"from"`
	Seat baloot.Seat `json:"seat"`
	Text string      `json:"text"`
}

// QueueStatusData answers queue_join, queue_leave and queue_status.
// AvgWaitMs is 0 until the first match forms.
type QueueStatusData struct {
	Success   bool  `json:"success"`
	QueueSize int   `json:"queueSize"`
	AvgWaitMs int64 `json:"avgWait"`
}

// BotSpeakData is a bot's table talk, forwarded from the room frame.
type BotSpeakData = room.Speech

type ToastData struct {
	Text string `json:"text"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GameUpdateData is a room frame forwarded as-is.
type GameUpdateData = room.Frame

const maxNameLen = 24

// SanitizeName strips control characters and trims the display name to
// something printable. Empty results fall back to "Player".
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		if b.Len() >= maxNameLen {
			break
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "Player"
	}
	return out
}

const maxChatLen = 280

// SanitizeChat bounds and cleans a chat line. Empty means drop it.
func SanitizeChat(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' {
			continue
		}
		b.WriteRune(r)
		if b.Len() >= maxChatLen {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
