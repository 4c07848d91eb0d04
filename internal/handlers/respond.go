package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chathub/internal/access"
	"chathub/internal/auth"
	"chathub/pkg/logger"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Anything
// unclassified is a 500 with a generic body; internal detail stays in
// the log, never in the response.
func writeError(w http.ResponseWriter, err error) {
	var ae *access.Error
	switch {
	case errors.As(err, &ae):
		status := http.StatusForbidden
		if ae.Code == access.CodeInvalidPassword {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, errorResponse{Error: string(ae.Code), Detail: ae.Detail})
	case errors.Is(err, access.ErrRoomNotFound),
		errors.Is(err, access.ErrInviteNotFound),
		errors.Is(err, access.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Detail: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "UNAUTHORIZED", Detail: "invalid credentials"})
	default:
		logger.Error("Request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL", Detail: "internal server error"})
	}
}

// bearerToken pulls the credential from the Authorization header or,
// for websocket upgrades where headers are awkward for browser
// clients, the token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && h[:len(prefix)] == prefix {
			return h[len(prefix):]
		}
	}
	return r.URL.Query().Get("token")
}
