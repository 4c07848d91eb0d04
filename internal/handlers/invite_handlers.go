package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"chathub/internal/access"
	"chathub/internal/auth"
	"chathub/internal/models"
)

// InviteHandlers serves /rooms/invites/{id}/accept, .../decline and the
// pending-invite listing. Accepting never reads a password from the
// request: the invite itself is the credential.
type InviteHandlers struct {
	access      *access.Controller
	authService *auth.Service
}

func NewInviteHandlers(ctrl *access.Controller, authService *auth.Service) *InviteHandlers {
	return &InviteHandlers{
		access:      ctrl,
		authService: authService,
	}
}

func (h *InviteHandlers) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	inviteID, err := getInviteIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid invite ID", http.StatusBadRequest)
		return
	}

	membership, err := h.access.AcceptInvite(r.Context(), inviteID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, membership)
}

func (h *InviteHandlers) DeclineInvite(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	inviteID, err := getInviteIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid invite ID", http.StatusBadRequest)
		return
	}

	if err := h.access.DeclineInvite(r.Context(), inviteID, user.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "invite declined"})
}

func (h *InviteHandlers) ListPendingInvites(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	invites, err := h.access.PendingInvites(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invites)
}

func (h *InviteHandlers) getUser(r *http.Request) (*models.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, auth.ErrInvalidCredentials
	}
	return h.authService.GetUserFromToken(r.Context(), token)
}

// getInviteIDFromPath parses /rooms/invites/{id}/...
func getInviteIDFromPath(r *http.Request) (int, error) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 4 {
		return 0, fmt.Errorf("invalid path")
	}
	return strconv.Atoi(parts[3])
}
