package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/balootlabs/baloot/internal/baloot"
)

// Server is the WebSocket gateway. It owns the connection set; game
// state lives behind the Service.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	service     *Service
}

// NewServer creates the gateway. An empty origin list allows every
// origin, which is the development default.
func NewServer(cfg *Config, logger *log.Logger, service *Service) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	origins := make(map[string]bool, len(cfg.Server.CORSOrigins))
	for _, o := range cfg.Server.CORSOrigins {
		origins[o] = true
	}

	s := &Server{
		addr: cfg.ListenAddress(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
		service:     service,
	}
	service.SetRoomClosedHook(s.roomClosed)
	return s
}

// Handler returns the HTTP handler so tests can mount it on a test
// server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start runs the listener until the process exits.
func (s *Server) Start() error {
	go s.run()
	s.logger.Info("Starting WebSocket server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// StartBackground runs only the connection lifecycle loop; callers
// mount Handler themselves.
func (s *Server) StartBackground() {
	go s.run()
}

// Stop closes every connection and halts the lifecycle loop.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()

	return nil
}

func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			_, ok := s.connections[conn]
			if ok {
				delete(s.connections, conn)
			}
			total := len(s.connections)
			s.mu.Unlock()

			if ok {
				// The seat survives the socket: the room holds it for the
				// grace window before a bot takes over.
				if rec := conn.Session(); rec != nil {
					s.logger.Info("Client dropped, starting grace", "session", rec.ID)
					s.service.Disconnect(s.ctx, rec)
				}
				_ = conn.Close()
			}
			s.logger.Info("Client disconnected", "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.logger, s, s.service)
	s.register <- client
	client.Start()

	go func() {
		<-client.ctx.Done()
		s.unregister <- client
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// BroadcastToRoom sends a message to every connection attached to the
// room.
func (s *Server) BroadcastToRoom(roomID string, msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if conn.RoomID() == roomID {
			if err := conn.SendMessage(msg); err == nil {
				count++
			}
		}
	}
	s.logger.Debug("Broadcast to room", "roomId", roomID, "type", msg.Type, "recipients", count)
}

// SendToSession sends a message to the connection holding the session.
func (s *Server) SendToSession(sessionID string, msg *Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for conn := range s.connections {
		if rec := conn.Session(); rec != nil && rec.ID == sessionID {
			return conn.SendMessage(msg)
		}
	}
	return fmt.Errorf("session not connected: %s", sessionID)
}

// MatchFound implements match.Notifier: it tells the session its table
// is ready and attaches the connection to the new room.
func (s *Server) MatchFound(sessionID, roomID string, seat baloot.Seat) {
	s.service.BindSession(s.ctx, sessionID, roomID, seat)

	msg, err := NewMessage(MessageTypeMatchFound, MatchFoundData{RoomID: roomID, Seat: seat})
	if err != nil {
		return
	}

	s.mu.RLock()
	var target *Connection
	for conn := range s.connections {
		if rec := conn.Session(); rec != nil && rec.ID == sessionID {
			target = conn
			break
		}
	}
	s.mu.RUnlock()

	if target == nil {
		s.logger.Warn("Match formed for offline session", "session", sessionID)
		return
	}
	_ = target.SendMessage(msg)

	if rm, ok := s.service.RoomBySession(sessionID); ok && rm.ID() == roomID {
		target.attach(rm, seat)
	}
}

// roomClosed fans the closure out to everyone still attached.
func (s *Server) roomClosed(roomID, reason string) {
	msg, err := NewMessage(MessageTypeRoomClosed, RoomClosedData{RoomID: roomID, Reason: reason})
	if err != nil {
		return
	}
	s.BroadcastToRoom(roomID, msg)
}
