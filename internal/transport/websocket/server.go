package websocket

import (
	"encoding/json"
	"net/http"

	ws "github.com/gorilla/websocket"
)

// Handler returns the HTTP routes: the WebSocket endpoint at /ws and a
// health check at /healthcheck.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/healthcheck", h.serveHealth)
	return mux
}

func (h *Hub) upgrader() *ws.Upgrader {
	return &ws.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowedOrigin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.cfg.AllowedOrigin
}

// ServeWS upgrades the request and runs the viewer until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(h.newClientID(), conn, h.cfg.ClientBuffer, h.logger)
	if !h.attach(c) {
		_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}
	h.logger.Debug("client connected", "clientId", c.id, "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop(h.handleMessage)
	h.detach(c)
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Rooms   int    `json:"rooms"`
}

func (h *Hub) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := healthResponse{Status: "ok", Clients: h.ClientCount(), Rooms: len(h.Rooms())}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
