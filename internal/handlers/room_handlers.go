package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"chathub/internal/access"
	"chathub/internal/auth"
	"chathub/internal/database"
	"chathub/internal/models"
	"chathub/internal/presence"
	"chathub/internal/protocol"
	"chathub/pkg/logger"
)

type RoomHandlers struct {
	access       *access.Controller
	authService  *auth.Service
	registry     *presence.Registry
	db           database.Database
	historyLimit int
}

func NewRoomHandlers(ctrl *access.Controller, authService *auth.Service, registry *presence.Registry, db database.Database, historyLimit int) *RoomHandlers {
	return &RoomHandlers{
		access:       ctrl,
		authService:  authService,
		registry:     registry,
		db:           db,
		historyLimit: historyLimit,
	}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	room, err := h.access.CreateRoom(r.Context(), &req, user.ID)
	if err != nil {
		logger.Error("Create room error: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Push discovery: every connected client learns about new public
	// rooms immediately. Hidden rooms are never announced.
	if room.Visibility == models.VisibilityPublic {
		h.registry.AnnounceAll(&protocol.RoomCreated{Room: room})
	}

	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rooms, err := h.access.ListDiscoverable(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	if err := h.access.DeleteRoom(r.Context(), roomID, user.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "room deleted"})
}

func (h *RoomHandlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	var req models.JoinRoomRequest
	if r.Body != nil {
		// An absent or empty body means no password was supplied.
		json.NewDecoder(r.Body).Decode(&req)
	}

	membership, err := h.access.JoinPublic(r.Context(), roomID, user.ID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, membership)
}

func (h *RoomHandlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	if err := h.access.Leave(r.Context(), roomID, user.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "left room"})
}

func (h *RoomHandlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	var req models.InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	invitee, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, access.ErrUserNotFound)
		return
	}

	invite, err := h.access.Invite(r.Context(), roomID, user.ID, invitee.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, invite)
}

func (h *RoomHandlers) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	members, err := h.access.RoomMembers(r.Context(), roomID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

// GetMessages returns the last N messages oldest-first, for history
// replay when a client joins.
func (h *RoomHandlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	if _, err := h.access.CheckAccess(r.Context(), roomID, user.ID); err != nil {
		writeError(w, err)
		return
	}

	limit := h.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	messages, err := h.db.LoadRecentMessages(r.Context(), roomID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *RoomHandlers) GetOnlineUsers(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	if _, err := h.access.CheckAccess(r.Context(), roomID, user.ID); err != nil {
		writeError(w, err)
		return
	}

	users := h.registry.Snapshot(roomID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id": roomID,
		"users":   users,
		"count":   len(users),
	})
}

func (h *RoomHandlers) getUserFromToken(r *http.Request) (*models.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, auth.ErrInvalidCredentials
	}
	return h.authService.GetUserFromToken(r.Context(), token)
}

func (h *RoomHandlers) getRoomIDFromPath(r *http.Request) (int, error) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 {
		return 0, fmt.Errorf("invalid path")
	}
	return strconv.Atoi(parts[2])
}
