package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/logger"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

// State is the connection state of a Gateway.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// EventReconnectFailed is dispatched once the reconnect attempts are exhausted.
const EventReconnectFailed = "reconnect_failed"

// Listener receives the raw data of one server event.
type Listener func(data json.RawMessage)

// Options configures a Gateway.
type Options struct {
	URL            string
	Token          string
	ConnectTimeout time.Duration
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	WriteWait      time.Duration
	Dialer         *websocket.Dialer
}

// DefaultOptions returns the production connection policy for url.
func DefaultOptions(url, token string) Options {
	return Options{
		URL:            url,
		Token:          token,
		ConnectTimeout: 15 * time.Second,
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Gateway is the client side of the realtime socket. One Gateway multiplexes
// every open conversation; callers must not create a second one per session.
type Gateway struct {
	opts Options

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	connID         string
	teardown       chan struct{}
	rooms          map[string]models.JoinChatPayload
	joined         map[string]bool
	listeners      map[string][]listenerEntry
	stateListeners []func(State)
	nextID         uint64

	writeMu sync.Mutex
}

// NewGateway builds a disconnected gateway.
func NewGateway(opts Options) *Gateway {
	def := DefaultOptions(opts.URL, opts.Token)
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = def.InitialDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = def.MaxDelay
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Gateway{
		opts:      opts,
		state:     StateDisconnected,
		rooms:     make(map[string]models.JoinChatPayload),
		joined:    make(map[string]bool),
		listeners: make(map[string][]listenerEntry),
	}
}

func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ConnectionID is the id the server assigned to the current connection. REST
// sends pass it so the server can skip echoing the message back.
func (g *Gateway) ConnectionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connID
}

// Joined reports whether the server acknowledged membership of chatID.
func (g *Gateway) Joined(chatID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.joined[chatID]
}

// On subscribes fn to a server event and returns the unsubscribe func.
func (g *Gateway) On(event string, fn Listener) func() {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.listeners[event] = append(g.listeners[event], listenerEntry{id: id, fn: fn})
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		entries := g.listeners[event]
		for i, e := range entries {
			if e.id == id {
				g.listeners[event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnState subscribes fn to state transitions.
func (g *Gateway) OnState(fn func(State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stateListeners = append(g.stateListeners, fn)
}

// Connect dials the server. A call while connecting or connected is a no-op.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StateDisconnected {
		g.mu.Unlock()
		return nil
	}
	g.teardown = make(chan struct{})
	teardown := g.teardown
	notify := g.setStateLocked(StateConnecting)
	g.mu.Unlock()
	notify()

	conn, err := g.dial(ctx)
	if err != nil {
		g.mu.Lock()
		notify = func() {}
		if g.teardown == teardown {
			notify = g.setStateLocked(StateDisconnected)
		}
		g.mu.Unlock()
		notify()
		return apperrors.Transport("connect to chat gateway", err)
	}
	if !g.attach(conn, teardown) {
		_ = conn.Close()
		return apperrors.Transport("gateway closed while connecting", nil)
	}
	return nil
}

// Disconnect tears the connection down for good; no reconnect follows.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	if g.teardown != nil {
		close(g.teardown)
		g.teardown = nil
	}
	conn := g.conn
	g.conn = nil
	g.connID = ""
	g.rooms = make(map[string]models.JoinChatPayload)
	g.joined = make(map[string]bool)
	notify := g.setStateLocked(StateDisconnected)
	g.mu.Unlock()

	if conn != nil {
		g.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(time.Second))
		g.writeMu.Unlock()
		_ = conn.Close()
	}
	notify()
}

// JoinChat asks the server to add this connection to the chat's room. The
// room is remembered and re-joined after every reconnect until LeaveChat.
func (g *Gateway) JoinChat(chatID, userID string, role models.Role) error {
	if strings.TrimSpace(chatID) == "" {
		return apperrors.Validation("chatId is required")
	}
	payload := models.JoinChatPayload{ChatID: chatID, UserID: userID, UserRole: role}
	g.mu.Lock()
	g.rooms[chatID] = payload
	connected := g.conn != nil
	g.mu.Unlock()
	if !connected {
		return nil
	}
	return g.Emit(models.EventJoinChat, payload)
}

// LeaveChat drops the room locally and tells the server.
func (g *Gateway) LeaveChat(chatID, userID string) error {
	g.mu.Lock()
	delete(g.rooms, chatID)
	delete(g.joined, chatID)
	connected := g.conn != nil
	g.mu.Unlock()
	if !connected {
		return nil
	}
	return g.Emit(models.EventLeaveChat, models.LeaveChatPayload{ChatID: chatID, UserID: userID})
}

func (g *Gateway) StartTyping(chatID, userID string, role models.Role) error {
	return g.Emit(models.EventTyping, models.TypingPayload{ChatID: chatID, UserID: userID, UserRole: role})
}

func (g *Gateway) StopTyping(chatID, userID string, role models.Role) error {
	return g.Emit(models.EventStopTyping, models.TypingPayload{ChatID: chatID, UserID: userID, UserRole: role})
}

// Emit writes one event. It does not wait for any acknowledgement.
func (g *Gateway) Emit(event string, data interface{}) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return apperrors.Transport("chat gateway is not connected", nil)
	}
	return g.write(conn, event, data)
}

func (g *Gateway) write(conn *websocket.Conn, event string, data interface{}) error {
	payload, err := json.Marshal(models.OutboundEvent{Event: event, Data: data})
	if err != nil {
		return apperrors.Internal("encode socket event", err)
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(g.opts.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return apperrors.Transport("write socket event", err)
	}
	return nil
}

func (g *Gateway) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	if g.opts.Token != "" {
		header.Set("Authorization", "Bearer "+g.opts.Token)
	}
	conn, resp, err := g.opts.Dialer.DialContext(ctx, g.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.New("handshake rejected: " + resp.Status)
		}
		return nil, err
	}
	return conn, nil
}

// attach installs conn as the live connection, re-sends the remembered room
// joins, and starts the read loop. It fails when teardown already fired.
func (g *Gateway) attach(conn *websocket.Conn, teardown chan struct{}) bool {
	g.mu.Lock()
	select {
	case <-teardown:
		g.mu.Unlock()
		return false
	default:
	}
	g.conn = conn
	g.joined = make(map[string]bool)
	rooms := make([]models.JoinChatPayload, 0, len(g.rooms))
	for _, p := range g.rooms {
		rooms = append(rooms, p)
	}
	notify := g.setStateLocked(StateConnected)
	g.mu.Unlock()

	notify()
	go g.readLoop(conn, teardown)
	for _, p := range rooms {
		if err := g.write(conn, models.EventJoinChat, p); err != nil {
			logger.Warn("rejoin chat %s failed: %v", p.ChatID, err)
		}
	}
	return true
}

func (g *Gateway) readLoop(conn *websocket.Conn, teardown chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			g.handleDrop(conn, teardown, err)
			return
		}
		var ev models.InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Event == "" {
			logger.Warn("ignoring malformed socket frame: %s", string(data))
			continue
		}
		g.track(ev)
		g.dispatch(ev.Event, ev.Data)
	}
}

// track keeps connection bookkeeping in step with server acknowledgements.
func (g *Gateway) track(ev models.InboundEvent) {
	switch ev.Event {
	case models.EventConnected:
		var p models.ConnectedPayload
		if json.Unmarshal(ev.Data, &p) == nil {
			g.mu.Lock()
			g.connID = p.ConnectionID
			g.mu.Unlock()
		}
	case models.EventJoinedChat:
		var p models.RoomPayload
		if json.Unmarshal(ev.Data, &p) == nil {
			g.mu.Lock()
			if _, wanted := g.rooms[p.ChatID]; wanted {
				g.joined[p.ChatID] = true
			}
			g.mu.Unlock()
		}
	case models.EventLeftChat:
		var p models.RoomPayload
		if json.Unmarshal(ev.Data, &p) == nil {
			g.mu.Lock()
			delete(g.joined, p.ChatID)
			g.mu.Unlock()
		}
	}
}

func (g *Gateway) handleDrop(conn *websocket.Conn, teardown chan struct{}, err error) {
	g.mu.Lock()
	if g.conn != conn {
		g.mu.Unlock()
		return
	}
	g.conn = nil
	g.connID = ""
	g.joined = make(map[string]bool)
	select {
	case <-teardown:
		g.mu.Unlock()
		return
	default:
	}
	notify := g.setStateLocked(StateReconnecting)
	g.mu.Unlock()
	notify()

	serverClosed := closedByServer(err)
	if serverClosed {
		logger.Info("chat gateway closed by server: %v", err)
	} else {
		logger.Warn("chat gateway connection lost: %v", err)
	}
	go g.reconnect(teardown, serverClosed)
}

// closedByServer reports whether err carries a close frame the server sent.
// gorilla reports a dropped transport as a synthetic 1006 close error, which
// never travels on the wire.
func closedByServer(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure
}

// reconnect retries the dial with capped exponential backoff. A close sent by
// the server gets one immediate attempt first.
func (g *Gateway) reconnect(teardown chan struct{}, immediate bool) {
	if immediate && g.tryReconnect(teardown) {
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.opts.InitialDelay
	b.MaxInterval = g.opts.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-teardown:
			timer.Stop()
			return
		case <-timer.C:
		}
		if g.tryReconnect(teardown) {
			return
		}
	}

	g.mu.Lock()
	select {
	case <-teardown:
		g.mu.Unlock()
		return
	default:
	}
	if g.teardown == teardown {
		g.teardown = nil
	}
	notify := g.setStateLocked(StateDisconnected)
	g.mu.Unlock()
	notify()

	logger.Error("chat gateway reconnect failed after %d attempts", g.opts.MaxAttempts)
	data, _ := json.Marshal(map[string]int{"attempts": g.opts.MaxAttempts})
	g.dispatch(EventReconnectFailed, data)
}

// tryReconnect reports whether the reconnect loop should stop.
func (g *Gateway) tryReconnect(teardown chan struct{}) bool {
	conn, err := g.dial(context.Background())
	if err != nil {
		logger.Warn("chat gateway reconnect attempt failed: %v", err)
		return false
	}
	if !g.attach(conn, teardown) {
		_ = conn.Close()
	}
	return true
}

// setStateLocked records s and returns the notification to run after unlocking.
func (g *Gateway) setStateLocked(s State) func() {
	if g.state == s {
		return func() {}
	}
	g.state = s
	listeners := append([]func(State){}, g.stateListeners...)
	return func() {
		for _, fn := range listeners {
			safeCall("state", func() { fn(s) })
		}
	}
}

func (g *Gateway) dispatch(event string, data json.RawMessage) {
	g.mu.Lock()
	entries := append([]listenerEntry(nil), g.listeners[event]...)
	g.mu.Unlock()
	for _, e := range entries {
		fn := e.fn
		safeCall(event, func() { fn(data) })
	}
}

func safeCall(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("chat gateway listener for %s panicked: %v", event, r)
		}
	}()
	fn()
}
