package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/elijahnyp/node1_dashboard/dashboard"
	"github.com/elijahnyp/node1_dashboard/state"
	. "github.com/elijahnyp/node1_dashboard/util"
	"github.com/elijahnyp/node1_dashboard/view"
	"github.com/gorilla/websocket"
)

//go:embed web/static/index.html
var indexHTML []byte

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboard, any origin
	},
}

const wsWriteWait = 5 * time.Second

// WebSocketMessage is what the page receives; Type is always "state" for now.
type WebSocketMessage struct {
	Data interface{} `json:"data"`
	Type string      `json:"type"`
}

type WSClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
	hub  *WSHub
}

// WSHub fans store changes out to every connected page.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan WebSocketMessage
	register   chan *WSClient
	unregister chan *WSClient
	current    func() state.Snapshot
}

func NewHub(current func() state.Snapshot) *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WebSocketMessage, 16),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		current:    current,
	}
}

// Run serves the hub until ctx ends, then drops every client.
func (h *WSHub) Run(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			// new pages start from the current state
			client.send <- WebSocketMessage{Type: "state", Data: h.current()}
			Logger.Info().Msg("Client connected to WebSocket")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				Logger.Info().Msg("Client disconnected from WebSocket")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

func (h *WSHub) BroadcastUpdate(messageType string, data interface{}) {
	select {
	case h.broadcast <- WebSocketMessage{Type: messageType, Data: data}:
	default:
		Logger.Debug().Msg("websocket broadcast queue full, dropping update")
	}
}

// Attach broadcasts every change of store.
func (h *WSHub) Attach(store *state.Store) func() {
	return store.Subscribe("web", func(s state.Snapshot) {
		h.BroadcastUpdate("state", s)
	})
}

func (c *WSClient) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *WSClient) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck // surfaced by WriteJSON
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck // peer may be gone
}

// WebUI is the browser mirror of the dashboard.
type WebUI struct {
	ctx   context.Context
	ctrl  Commands
	store *state.Store
	hub   *WSHub
}

func NewWebUI(ctx context.Context, store *state.Store, ctrl Commands) *WebUI {
	return &WebUI{
		ctx:   ctx,
		ctrl:  ctrl,
		store: store,
		hub:   NewHub(store.Snapshot),
	}
}

// Routes registers the web endpoints on the monitor server.
func (u *WebUI) Routes(monitor *MonitorServer) {
	monitor.AddHandler("/", u.HomeHandler)
	monitor.AddHandler("/ws", u.ServeWebSocket)
	monitor.AddHandler("/api/state", u.APIState)
	monitor.AddHandler("/api/led1/toggle", u.APIToggleLed1)
	monitor.AddHandler("/api/led2", u.APISetLed2)
	monitor.AddHandler("/snapshot.jpg", u.SnapshotImage)
}

// Start runs the hub and ties it to the store until ctx ends.
func (u *WebUI) Start(ctx context.Context) {
	detach := u.hub.Attach(u.store)
	go func() {
		defer detach()
		u.hub.Run(ctx)
	}()
}

func (u *WebUI) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan WebSocketMessage, 256),
		hub:  u.hub,
	}

	select {
	case client.hub.register <- client:
	case <-u.ctx.Done():
		_ = conn.Close() //nolint:errcheck // shutting down
		return
	}

	go client.writePump()
	go client.readPump(u.ctx)
}

func (u *WebUI) HomeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		Logger.Error().Msgf("Error writing response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Error encoding response")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func badMethod(w http.ResponseWriter) {
	w.WriteHeader(http.StatusMethodNotAllowed)
	if _, err := io.WriteString(w, "Bad Request Method\n"); err != nil {
		Logger.Error().Msgf("Error writing response: %v", err)
	}
}

func (u *WebUI) APIState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		badMethod(w)
		return
	}
	writeJSON(w, http.StatusOK, u.store.Snapshot())
}

func (u *WebUI) APIToggleLed1(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		badMethod(w)
		return
	}
	if err := u.ctrl.ToggleLed1(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, u.store.Snapshot())
}

func (u *WebUI) APISetLed2(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		badMethod(w)
		return
	}
	var body struct {
		Level *int `json:"level"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&body); err != nil || body.Level == nil {
		writeError(w, http.StatusBadRequest, errors.New(`body must be {"level": 0..5}`))
		return
	}
	if err := u.ctrl.SetLed2(r.Context(), *body.Level); err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, dashboard.ErrLevelOutOfRange) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, u.store.Snapshot())
}

func (u *WebUI) SnapshotImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		badMethod(w)
		return
	}
	img, err := view.SnapshotJPEG(u.store.Snapshot())
	if err != nil {
		http.Error(w, "Error encoding image", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	if _, err := w.Write(img); err != nil {
		Logger.Error().Msgf("Error writing image response: %v", err)
	}
}
