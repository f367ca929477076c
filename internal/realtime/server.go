package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"simplic/internal/metrics"
	"simplic/internal/protocol"
	"simplic/internal/workspace"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Options configures a Server.
type Options struct {
	StaticDir string
	Metrics   bool
	Logger    *zap.Logger
}

// Server manages WebSocket connections and routes messages between clients
// and the workspace. Workspace notifications are broadcast to every client.
type Server struct {
	ws        *workspace.Workspace
	clients   map[*client]bool
	clientsMu sync.RWMutex
	staticDir string
	metrics   bool
	log       *zap.Logger

	unsubscribe func()
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a realtime server for ws.
func New(ws *workspace.Workspace, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		ws:        ws,
		clients:   make(map[*client]bool),
		staticDir: opts.StaticDir,
		metrics:   opts.Metrics,
		log:       log,
	}
	s.unsubscribe = ws.Subscribe(s.onNotification)
	return s
}

// Close stops forwarding notifications and disconnects all clients.
func (s *Server) Close() {
	s.unsubscribe()

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		c.conn.Close()
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API endpoints.
	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("POST /projects", s.handleCreateProject)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}/output", s.handleJobOutput)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleCancelJob)

	if s.metrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// Static file serving.
	if s.staticDir != "" {
		fileServer := http.FileServer(http.Dir(s.staticDir))
		mux.Handle("/", fileServer)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
		ctx:    ctx,
		cancel: cancel,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	s.log.Debug("client connected", zap.String("remote", r.RemoteAddr))

	// Bring the new client up to date.
	s.sendState(c)

	go c.writePump()
	go c.readPump()
}

// sendState sends the current session state to a client.
func (s *Server) sendState(c *client) {
	ctx, cancel := context.WithTimeout(c.ctx, writeDeadline)
	defer cancel()

	state, err := s.ws.State(ctx)
	if err != nil {
		s.log.Warn("state snapshot failed", zap.Error(err))
		return
	}
	msg, err := protocol.NewMessage(protocol.TypeState, state)
	if err != nil {
		return
	}
	c.enqueue(msg)
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues msg for the client, dropping it when the buffer is full.
func (c *client) enqueue(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.server.clientsMu.RLock()
	defer c.server.clientsMu.RUnlock()
	if !c.server.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, skip.
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	c.cancel()

	s.clientsMu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
	s.clientsMu.Unlock()
}

// onNotification forwards a workspace notification to every client. It runs
// on the workspace loop and never blocks.
func (s *Server) onNotification(n workspace.Notification) {
	msg, err := protocol.NewMessage(string(n.Type), n.Payload)
	if err != nil {
		s.log.Warn("encode notification failed", zap.String("type", string(n.Type)), zap.Error(err))
		return
	}
	msg.Timestamp = n.Time
	s.broadcast(msg)
}

// broadcast sends a message to all connected clients.
func (s *Server) broadcast(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, skip.
		}
	}
}
