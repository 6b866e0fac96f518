package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mahaj/roomchat/pkg/config"
	"github.com/mahaj/roomchat/pkg/room"
	"github.com/mahaj/roomchat/pkg/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames buffered per client before it counts as slow.
	sendBuffer = 256
)

// Coordinator is what the gateway needs from the room state machine.
type Coordinator interface {
	Dispatch(ctx context.Context, connID string, ev room.Event) (room.Ack, bool)
	Disconnect(ctx context.Context, connID string)
}

// Server upgrades websocket requests and pumps frames between clients and
// the coordinator.
type Server struct {
	hub      *Hub
	coord    Coordinator
	upgrader websocket.Upgrader
	maxFrame int64
	logger   *slog.Logger

	// Parent of every connection's context; cancelled on shutdown.
	baseCtx context.Context
}

func NewServer(ctx context.Context, hub *Hub, coord Coordinator, allowedOrigins []string, maxFrame int64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:      hub,
		coord:    coord,
		maxFrame: maxFrame,
		logger:   logger,
		baseCtx:  ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return config.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Chat server running"))
	})
	mux.HandleFunc("GET /ws", s.serveWs)
	return mux
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames. Closed by the hub.
	send chan []byte

	// Guarded by hub.mu.
	closed bool

	// Connection id, unique per socket.
	ID string
}

// serveWs handles websocket requests from the peer.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, sendBuffer), ID: uuid.NewString()}
	s.hub.Register(client)
	s.logger.Info("client connected", "conn", client.ID, "remote", r.RemoteAddr)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go s.readPump(client)
}

// readPump handles one client's frames in order until the socket closes,
// then clears its presence.
func (s *Server) readPump(c *Client) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	defer func() {
		cancel()
		s.hub.Unregister(c)
		// The base context may already be cancelled on shutdown.
		s.coord.Disconnect(context.WithoutCancel(ctx), c.ID)
		c.conn.Close()
		s.logger.Info("client disconnected", "conn", c.ID)
	}()

	c.conn.SetReadLimit(s.maxFrame)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("read failed", "conn", c.ID, "err", err)
			}
			return
		}
		s.handleFrame(ctx, c, message)
	}
}

func (s *Server) handleFrame(ctx context.Context, c *Client, message []byte) {
	frame, err := wire.Decode(message)
	if err != nil {
		s.logger.Warn("bad frame", "conn", c.ID, "err", err)
		return
	}

	ev, err := room.Decode(frame.Event, frame.Data)
	if err != nil {
		s.logger.Warn("bad event", "conn", c.ID, "event", frame.Event, "err", err)
		msg := "Invalid payload"
		if errors.Is(err, room.ErrUnknownEvent) {
			msg = "Unknown event"
		}
		s.reply(c, frame.ID, room.Ack{Success: false, Message: msg})
		return
	}

	ack, acked := s.coord.Dispatch(ctx, c.ID, ev)
	if acked {
		s.reply(c, frame.ID, ack)
	}
}

// reply sends an ack frame when the request carried an id.
func (s *Server) reply(c *Client, id string, ack room.Ack) {
	if id == "" {
		return
	}
	msg, err := wire.Encode(wire.EventAck, id, ack)
	if err != nil {
		s.logger.Error("encode ack", "conn", c.ID, "err", err)
		return
	}
	if err := s.hub.send(c.ID, msg); err != nil {
		s.logger.Debug("ack not delivered", "conn", c.ID, "err", err)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per websocket message; clients decode them one by one.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
