package main

import (
	"log/slog"
	"net/http"

	"github.com/mahaj/roomchat/pkg/room"
)

// ConversationsHandler lists the rooms a user belongs to, with members.
func ConversationsHandler(reader *room.Reader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := reader.GetUserRooms(r.Context(), room.GetUserRooms{Username: r.PathValue("username")})
		writeAck(w, logger, res, err)
	}
}
