package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"webterm/internal/console"
	"webterm/internal/protocol"
	"webterm/internal/session"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBufSize   = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Server manages WebSocket connections and routes messages between
// browser consoles and the session manager.
type Server struct {
	sessionMgr *session.Manager
	clients    map[*client]bool
	clientsMu  sync.RWMutex
	staticDir  string
	log        logrus.FieldLogger

	// subscriptions tracks which console subscriptions exist per client.
	// key: client, value: map[sessionID]subscriptionID
	subscriptions   map[*client]map[string]string
	subscriptionsMu sync.Mutex
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// New creates a new realtime server.
func New(sessionMgr *session.Manager, staticDir string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		sessionMgr:    sessionMgr,
		clients:       make(map[*client]bool),
		staticDir:     staticDir,
		log:           log,
		subscriptions: make(map[*client]map[string]string),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// WebSocket endpoint.
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	// REST API endpoints.
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)

	// Static file serving.
	if s.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}

	return corsMiddleware(r)
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

// handleWebSocket upgrades an HTTP connection to WebSocket and attaches it
// to the session named by the "session" query parameter, creating a new
// session when none is given.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sess, err := s.sessionMgr.Create(r.URL.Query().Get("label"))
		if err != nil {
			writeCodedError(w, err)
			return
		}
		sessionID = sess.ID
	} else if _, err := s.sessionMgr.Controller(sessionID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade error")
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	s.subscriptionsMu.Lock()
	s.subscriptions[c] = make(map[string]string)
	s.subscriptionsMu.Unlock()

	if sess, err := s.sessionMgr.Get(sessionID); err == nil {
		s.sendTo(c, protocol.TypeSessionUpdate, sessionPayload(sess))
	}
	s.subscribeClient(c, sessionID)

	go c.writePump()
	go c.readPump()
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
				c.server.log.WithError(err).Warn("websocket read error")
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

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	// Senders check membership under clientsMu, so closing send here
	// cannot race with them.
	s.clientsMu.Lock()
	delete(s.clients, c)
	close(c.send)
	s.clientsMu.Unlock()

	s.subscriptionsMu.Lock()
	subs := s.subscriptions[c]
	delete(s.subscriptions, c)
	s.subscriptionsMu.Unlock()

	for sessionID, subID := range subs {
		s.sessionMgr.Unsubscribe(sessionID, subID)
	}
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	var target protocol.SessionIDPayload
	json.Unmarshal(msg.Payload, &target)

	ctrl, err := s.sessionMgr.Controller(target.SessionID)
	if err != nil {
		s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeConsoleInput:
		var payload protocol.ConsoleInputPayload
		json.Unmarshal(msg.Payload, &payload)
		err = ctrl.SetInput(payload.Text)

	case protocol.TypeConsoleSubmit:
		_, err = ctrl.Submit()

	case protocol.TypeConsoleRecallPrevious:
		_, err = ctrl.RecallPrevious()

	case protocol.TypeConsoleRecallNext:
		_, err = ctrl.RecallNext()

	case protocol.TypeConsoleSnapshot:
		var state console.State
		if state, err = ctrl.Snapshot(); err == nil {
			s.sendTo(c, protocol.TypeConsoleState, statePayload(target.SessionID, state, true))
		}
	}

	if err != nil && !errors.Is(err, console.ErrEmptyInput) {
		code, _ := errorCode(err)
		s.sendError(c, code, err.Error())
	}
}

// subscribeClient subscribes a single client to a session's console.
func (s *Server) subscribeClient(c *client, sessionID string) {
	s.subscriptionsMu.Lock()
	if _, exists := s.subscriptions[c][sessionID]; exists {
		s.subscriptionsMu.Unlock()
		return // Already subscribed.
	}
	s.subscriptionsMu.Unlock()

	subID, ch, state, err := s.sessionMgr.Subscribe(sessionID)
	if err != nil {
		s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		return
	}

	s.subscriptionsMu.Lock()
	if s.subscriptions[c] == nil {
		s.subscriptions[c] = make(map[string]string)
	}
	s.subscriptions[c][sessionID] = subID
	s.subscriptionsMu.Unlock()

	s.sendTo(c, protocol.TypeConsoleState, statePayload(sessionID, state, true))

	// Forward console updates until the subscription ends.
	go func() {
		for u := range ch {
			if u.Entry != nil {
				s.sendTo(c, protocol.TypeConsoleEntry, entryPayload(sessionID, *u.Entry))
			}
			s.sendTo(c, protocol.TypeConsoleState, statePayload(sessionID, u.State, false))
		}

		if sess, err := s.sessionMgr.Get(sessionID); err == nil && sess.State == session.StateTerminated {
			s.sendTo(c, protocol.TypeSessionUpdate, sessionPayload(sess))
		}
	}()
}

func (s *Server) sendTo(c *client, msgType string, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, _ := json.Marshal(msg)
	s.enqueue(c, data)
}

func (s *Server) enqueue(c *client, data []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	if !s.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, skip.
	}
}

func (s *Server) sendError(c *client, code, message string) {
	msg, _ := protocol.NewErrorMessage(code, message)
	data, _ := json.Marshal(msg)
	s.enqueue(c, data)
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

// OnAssetsChanged is the callback for the static asset watcher. Browsers
// reload the console when they receive it.
func (s *Server) OnAssetsChanged(path string) {
	msg, err := protocol.NewMessage(protocol.TypeAssetsReload, protocol.AssetsReloadPayload{Path: path})
	if err != nil {
		return
	}
	s.broadcast(msg)
}
