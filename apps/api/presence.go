package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type PresenceHandler struct {
	users  Users
	logger *slog.Logger
}

func NewPresenceHandler(users Users, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{users: users, logger: logger}
}

func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("name")

	users, err := h.users.Users(r.Context(), channel)
	if err != nil {
		h.logger.Error("failed to fetch presence", "channel", channel, "err", err)
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}
