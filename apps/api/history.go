package main

import (
	"log/slog"
	"net/http"

	"github.com/mahaj/roomchat/pkg/room"
)

type HistoryHandler struct {
	reader *room.Reader
	logger *slog.Logger
}

func NewHistoryHandler(reader *room.Reader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{reader: reader, logger: logger}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.reader.GetRoomMessages(r.Context(), room.GetRoomMessages{RoomName: r.PathValue("name")})
	writeAck(w, h.logger, res, err)
}

type RoomHandler struct {
	reader *room.Reader
	logger *slog.Logger
}

func NewRoomHandler(reader *room.Reader, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{reader: reader, logger: logger}
}

func (h *RoomHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.reader.CheckRoom(r.Context(), room.CheckRoom{RoomName: r.PathValue("name")})
	writeAck(w, h.logger, res, err)
}
