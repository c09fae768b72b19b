package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/websocket"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub         *websocket.Hub
	authService *service.AuthService
	upgrader    ws.Upgrader
}

// NewWebSocketHandler accepts upgrades from allowedOrigins; "*" or an empty
// list accepts any origin.
func NewWebSocketHandler(hub *websocket.Hub, authService *service.AuthService, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketHandler{
		hub:         hub,
		authService: authService,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origins["*"] || origin == "" || origins[origin]
			},
		},
	}
}

func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on the upgrade request.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Token required", http.StatusUnauthorized)
		return
	}

	principal, err := h.authService.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user_id", principal.UserID, "error", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, principal.UserID)
	if err := h.hub.Register(client); err != nil {
		slog.Warn("websocket register failed", "user_id", principal.UserID, "error", err)
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
