package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"chathub/internal/access"
	"chathub/internal/auth"
	"chathub/internal/config"
	"chathub/internal/database"
	"chathub/internal/presence"
	"chathub/internal/protocol"
	"chathub/internal/router"
	"chathub/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	access      *access.Controller
	registry    *presence.Registry
	router      *router.Router
	db          database.Database
	cfg         *config.Config
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, ctrl *access.Controller, registry *presence.Registry, msgRouter *router.Router, db database.Database, cfg *config.Config) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		access:      ctrl,
		registry:    registry,
		router:      msgRouter,
		db:          db,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket admits one connection: validate the bearer
// credential, verify room membership, upgrade, then run the read and
// write pumps until the connection dies.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserFromToken(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	roomID, err := strconv.Atoi(r.URL.Query().Get("room_id"))
	if err != nil {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	// Membership is established over REST (join or invite accept)
	// before connecting; the socket itself never grants access.
	if _, err := h.access.CheckAccess(r.Context(), roomID, user.ID); err != nil {
		http.Error(w, "not a member of this room", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	sess := presence.NewSession(user.ID, user.Username, roomID)
	h.registry.Join(sess)
	h.registry.Broadcast(roomID, h.registry.OnlineUsersFrame(roomID))

	go h.writePump(conn, sess)
	go func() {
		h.sendRecentMessages(sess)
		h.readPump(conn, sess)
	}()
}

// readPump drains inbound frames and hands each to the message router
// in arrival order, which is what gives one sender FIFO semantics.
func (h *WebSocketHandlers) readPump(conn *websocket.Conn, sess *presence.Session) {
	defer func() {
		h.registry.Leave(sess)
		h.registry.Broadcast(sess.RoomID, h.registry.OnlineUsersFrame(sess.RoomID))
		conn.Close()
	}()

	deadline := h.readDeadline()
	conn.SetReadDeadline(time.Now().Add(deadline))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("Session %s: websocket error: %v", sess.ID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(deadline))

		h.router.HandleFrame(context.Background(), sess, data)
	}
}

func (h *WebSocketHandlers) writePump(conn *websocket.Conn, sess *presence.Session) {
	defer conn.Close()

	for msg := range sess.Outbound() {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Debug("Session %s: write error: %v", sess.ID, err)
			return
		}
	}

	// Outbound closed: the session was removed from the registry.
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// sendRecentMessages replays the room's recent history, oldest first,
// to a newly admitted session.
func (h *WebSocketHandlers) sendRecentMessages(sess *presence.Session) {
	messages, err := h.db.LoadRecentMessages(context.Background(), sess.RoomID, h.cfg.Heartbeat.HistoryLimit)
	if err != nil {
		logger.Error("Session %s: failed to load history: %v", sess.ID, err)
		return
	}

	for _, msg := range messages {
		sess.Send(&protocol.ChatMessage{
			MessageID: msg.ID,
			RoomID:    msg.RoomID,
			UserID:    msg.SenderID,
			Username:  msg.Username,
			Content:   msg.Content,
			Timestamp: msg.CreatedAt.Format(time.RFC3339),
		})
	}
}

// readDeadline leaves room for two missed client heartbeats before the
// server gives up on a silent connection.
func (h *WebSocketHandlers) readDeadline() time.Duration {
	d := 2 * (h.cfg.Heartbeat.PingInterval + h.cfg.Heartbeat.PongTimeout)
	if d < time.Minute {
		d = time.Minute
	}
	return d
}
