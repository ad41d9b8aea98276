// Package fakeapi provides a fake cosmetics service for tests.
//
// It serves the bulk cosmetics endpoint, image downloads and the /v3 event
// stream from one listener. The event stream is implemented with gws and
// speaks the same op/d framing as the real service: it greets every
// connection with a Hello, records subscriptions and lets tests push
// dispatches or end sessions.
package fakeapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/lxzan/gws"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/eventapi"
)

const sessionKey = "session_id"

// Server is a fake cosmetics service. Use "127.0.0.1:0" to bind to a random
// available port.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	upgrader   *gws.Upgrader

	// HeartbeatInterval is announced in every Hello.
	HeartbeatInterval time.Duration
	// SendHeartbeats makes the server send a heartbeat every interval.
	SendHeartbeats bool

	mu             sync.RWMutex
	cosmetics      []byte
	cosmeticStatus int
	queries        []url.Values
	images         map[string][]byte
	connections    map[*gws.Conn]string
	sessions       []string
	subscriptions  []eventapi.Subscription
}

// Handler implements gws.Event for event stream connections.
type Handler struct {
	server *Server
}

func NewServer(addr string) *Server {
	s := &Server{
		addr:              addr,
		HeartbeatInterval: constants.DefaultHeartbeatInterval,
		cosmetics:         []byte(`{"paints":[]}`),
		cosmeticStatus:    http.StatusOK,
		images:            make(map[string][]byte),
		connections:       make(map[*gws.Conn]string),
	}
	s.upgrader = gws.NewUpgrader(&Handler{server: s}, &gws.ServerOption{})

	r := mux.NewRouter()
	r.HandleFunc(constants.CosmeticsPath, s.handleCosmetics).Methods(http.MethodGet)
	r.HandleFunc("/images/{name}", s.handleImage).Methods(http.MethodGet)
	r.HandleFunc("/v3", s.handleEvents)
	s.httpServer = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	return s
}

func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("fakeapi: server error: %v", err)
		}
	}()

	return nil
}

// Stop closes the listener and every open event stream connection.
func (s *Server) Stop() error {
	s.DropConnections()
	return s.httpServer.Close()
}

func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// URL is the base URL of the HTTP endpoints.
func (s *Server) URL() string {
	return "http://" + s.Address()
}

// EventsURL is the URL of the event stream.
func (s *Server) EventsURL() string {
	return "ws://" + s.Address() + "/v3"
}

// ImageURL is the URL under which SetImage serves name.
func (s *Server) ImageURL(name string) string {
	return s.URL() + "/images/" + name
}

// SetCosmetics sets the response of the bulk cosmetics endpoint.
func (s *Server) SetCosmetics(status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cosmeticStatus = status
	s.cosmetics = body
}

// CosmeticsQueries returns the query of every cosmetics request so far.
func (s *Server) CosmeticsQueries() []url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]url.Values(nil), s.queries...)
}

func (s *Server) SetImage(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[name] = data
}

// Sessions returns the id of every event stream session opened so far.
func (s *Server) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.sessions...)
}

// Subscriptions returns every subscription received so far, across sessions.
func (s *Server) Subscriptions() []eventapi.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]eventapi.Subscription(nil), s.subscriptions...)
}

// Connections returns the number of open event stream connections.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Dispatch sends an event of the given type to every open connection.
func (s *Server) Dispatch(typ string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.Broadcast(eventapi.OpDispatch, eventapi.Dispatch{Type: typ, Body: raw})
}

// Broadcast sends an op frame to every open connection.
func (s *Server) Broadcast(op eventapi.Opcode, d any) error {
	frame, err := eventapi.NewMessage(op, d)
	if err != nil {
		return err
	}

	var errs []error
	for _, socket := range s.sockets() {
		if err := socket.WriteMessage(gws.OpcodeText, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequestReconnect asks every client to reconnect.
func (s *Server) RequestReconnect() error {
	return s.Broadcast(eventapi.OpReconnect, struct{}{})
}

// EndStream sends EndOfStream with code and closes every connection.
func (s *Server) EndStream(code int, message string) error {
	err := s.Broadcast(eventapi.OpEndOfStream, eventapi.EndOfStream{Code: code, Message: message})
	for _, socket := range s.sockets() {
		socket.WriteClose(constants.CloseMessageCode, nil)
	}
	return err
}

// DropConnections closes every connection without a close frame.
func (s *Server) DropConnections() {
	for _, socket := range s.sockets() {
		_ = socket.NetConn().Close()
	}
}

func (s *Server) sockets() []*gws.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sockets := make([]*gws.Conn, 0, len(s.connections))
	for socket := range s.connections {
		sockets = append(sockets, socket)
	}
	return sockets
}

func (s *Server) handleCosmetics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queries = append(s.queries, r.URL.Query())
	status, body := s.cosmeticStatus, s.cosmetics
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data, ok := s.images[mux.Vars(r)["name"]]
	s.mu.RUnlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		log.Printf("fakeapi: upgrade failed: %v", err)
		return
	}
	go socket.ReadLoop()
}

// newSessionID returns constants.SessionIDLength hex characters.
func newSessionID() string {
	buf := make([]byte, constants.SessionIDLength/2)
	if _, err := rand.Read(buf); err != nil {
		panic("unreachable: crypto/rand failed")
	}
	return hex.EncodeToString(buf)
}

func (h *Handler) OnOpen(socket *gws.Conn) {
	s := h.server
	id := newSessionID()
	socket.Session().Store(sessionKey, id)

	s.mu.Lock()
	s.connections[socket] = id
	s.sessions = append(s.sessions, id)
	s.mu.Unlock()

	frame, err := eventapi.NewMessage(eventapi.OpHello, eventapi.Hello{
		HeartbeatInterval: s.HeartbeatInterval.Milliseconds(),
		SessionID:         id,
		SubscriptionLimit: 500,
	})
	if err == nil {
		err = socket.WriteMessage(gws.OpcodeText, frame)
	}
	if err != nil {
		log.Printf("fakeapi: failed to send hello: %v", err)
		return
	}

	if s.SendHeartbeats {
		go h.heartbeat(socket)
	}
}

func (h *Handler) heartbeat(socket *gws.Conn) {
	ticker := time.NewTicker(h.server.HeartbeatInterval)
	defer ticker.Stop()

	for count := 1; ; count++ {
		<-ticker.C
		frame, _ := eventapi.NewMessage(eventapi.OpHeartbeat, map[string]int{"count": count})
		if err := socket.WriteMessage(gws.OpcodeText, frame); err != nil {
			return
		}
	}
}

func (h *Handler) OnClose(socket *gws.Conn, err error) {
	h.server.mu.Lock()
	delete(h.server.connections, socket)
	h.server.mu.Unlock()
}

func (h *Handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		log.Printf("fakeapi: error writing pong: %v", err)
	}
}

func (h *Handler) OnPong(socket *gws.Conn, payload []byte) {}

func (h *Handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	var msg eventapi.Message
	if err := json.Unmarshal(message.Bytes(), &msg); err != nil {
		h.sendError(socket, fmt.Sprintf("malformed frame: %v", err))
		return
	}

	switch msg.Op {
	case eventapi.OpSubscribe:
		var sub eventapi.Subscription
		if err := json.Unmarshal(msg.Data, &sub); err != nil {
			h.sendError(socket, fmt.Sprintf("malformed subscription: %v", err))
			return
		}

		h.server.mu.Lock()
		h.server.subscriptions = append(h.server.subscriptions, sub)
		h.server.mu.Unlock()

		frame, _ := eventapi.NewMessage(eventapi.OpAck, map[string]any{
			"command": "SUBSCRIBE",
			"data":    sub,
		})
		_ = socket.WriteMessage(gws.OpcodeText, frame)

	default:
		h.sendError(socket, fmt.Sprintf("unsupported op %d", msg.Op))
	}
}

func (h *Handler) sendError(socket *gws.Conn, message string) {
	frame, _ := eventapi.NewMessage(eventapi.OpError, map[string]string{"message": message})
	_ = socket.WriteMessage(gws.OpcodeText, frame)
}
