// Package wallboard serves a read-only live feed of the ward census over
// WebSocket. Corridor displays connect to /ws and receive typed JSON
// messages as records change; they never write back.
package wallboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"wardsync/internal/census"
)

// MessageType defines the type of wallboard message.
type MessageType string

const (
	// MessageTypeCensusUpdate indicates a census record changed.
	MessageTypeCensusUpdate MessageType = "census_update"

	// MessageTypeSyncStatus indicates the remote link went up or down.
	MessageTypeSyncStatus MessageType = "sync_status"

	// MessageTypeStats indicates updated occupancy statistics.
	MessageTypeStats MessageType = "stats"
)

// Message represents a wallboard broadcast message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// CensusUpdateData describes one record change.
type CensusUpdateData struct {
	Date    string       `json:"date"`
	Origin  string       `json:"origin"` // remote or echo
	Deleted bool         `json:"deleted,omitempty"`
	Stats   census.Stats `json:"stats"`
}

// SyncStatusData describes the remote link state.
type SyncStatusData struct {
	Online bool `json:"online"`
}

// sendQueueSize is each client's broadcast buffer. A display that cannot
// drain this many messages is dropped rather than allowed to stall the hub.
const sendQueueSize = 32

type wallClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Server manages WebSocket connections and broadcasts wallboard messages.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*wallClient]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	// welcome builds the first message each client receives.
	welcomeMu sync.RWMutex
	welcome   func() Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: ":8737"). Use ":0" for a random port.
	Addr string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8737",
		Logger: log.New(log.Writer(), "[wallboard] ", log.LstdFlags),
	}
}

// NewServer creates a wallboard WebSocket server.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(log.Writer(), "[wallboard] ", log.LstdFlags)
	}
	addr := config.Addr
	if addr == "" {
		addr = ":8737"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      addr,
		clients:   make(map[*wallClient]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// SetWelcome installs the hook that builds each new client's first message.
// When unset, clients receive an empty stats message.
func (s *Server) SetWelcome(fn func() Message) {
	s.welcomeMu.Lock()
	s.welcome = fn
	s.welcomeMu.Unlock()
}

// Start begins the HTTP server and WebSocket handler.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("wallboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	clients := make([]*wallClient, 0, len(s.clients))
	for cl := range s.clients {
		clients = append(clients, cl)
	}
	s.clientsMu.Unlock()
	for _, cl := range clients {
		s.removeClient(cl, websocket.StatusGoingAway, "server shutting down")
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	return nil
}

// Broadcast queues a message for every connected client.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("broadcast channel full, dropping message")
	}
}

// broadcastLoop fans messages out to client send queues. A client whose
// queue is full is dropped on the spot; one stuck display must not delay
// the others.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*wallClient, 0, len(s.clients))
			for cl := range s.clients {
				clients = append(clients, cl)
			}
			s.clientsMu.RUnlock()

			for _, cl := range clients {
				select {
				case cl.send <- data:
				default:
					s.logger.Println("dropping slow wallboard client")
					s.removeClient(cl, websocket.StatusPolicyViolation, "send queue full")
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // displays live on the ward LAN
	})
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	cl := &wallClient{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}

	// The welcome goes into the queue before registration so it is always
	// the first message the client sees.
	welcome := s.welcomeMessage()
	if data, err := json.Marshal(welcome); err == nil {
		cl.send <- data
	}

	s.clientsMu.Lock()
	s.clients[cl] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("client connected (total: %d)", count)

	go s.writeLoop(cl)
	go s.readLoop(cl)
}

func (s *Server) welcomeMessage() Message {
	s.welcomeMu.RLock()
	fn := s.welcome
	s.welcomeMu.RUnlock()
	if fn != nil {
		return fn()
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now()}
}

// writeLoop drains one client's send queue. It exits when the client is
// removed or the server stops; it is deliberately not tracked by the
// server's WaitGroup so a connection arriving mid-shutdown cannot race it.
func (s *Server) writeLoop(cl *wallClient) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-cl.done:
			return
		case data := <-cl.send:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := cl.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.removeClient(cl, websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}

// readLoop exists only to notice disconnects; client payloads are ignored
// because the wallboard is read-only.
func (s *Server) readLoop(cl *wallClient) {
	defer s.removeClient(cl, websocket.StatusNormalClosure, "")

	for {
		if _, _, err := cl.conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// removeClient deregisters and closes a client connection exactly once.
func (s *Server) removeClient(cl *wallClient, status websocket.StatusCode, reason string) {
	cl.once.Do(func() {
		s.clientsMu.Lock()
		delete(s.clients, cl)
		count := len(s.clients)
		s.clientsMu.Unlock()

		close(cl.done)
		_ = cl.conn.Close(status, reason)
		s.logger.Printf("client disconnected (total: %d)", count)
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleRoot returns basic server information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Ward Census Wallboard</title>
</head>
<body>
    <h1>Ward Census Wallboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Connect a WebSocket client to receive live census updates.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
