// Package journal appends every fan-out the gateway performs to a Kafka topic,
// keyed by room so one partition holds a room's events in order.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/roomchat/pkg/room"
)

const (
	KindRoom   = "room"
	KindDirect = "direct"
)

// Record is one journaled fan-out.
type Record struct {
	Node    string          `json:"node,omitempty"`
	Kind    string          `json:"kind"`
	Room    string          `json:"room,omitempty"`
	Conn    string          `json:"conn,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// MessageWriter is the subset of *kafka.Writer the tee needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns an async producer; delivery failures are logged from
// the completion callback.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *kafka.Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("journal write failed", "messages", len(msgs), "err", err)
			}
		},
	}
}

// Tee forwards to the wrapped Broadcaster and journals each successful
// fan-out. Journal failures never fail the fan-out.
type Tee struct {
	next   room.Broadcaster
	w      MessageWriter
	node   string
	logger *slog.Logger
	now    func() time.Time
}

var _ room.Broadcaster = (*Tee)(nil)

func NewTee(next room.Broadcaster, w MessageWriter, node string, logger *slog.Logger) *Tee {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tee{next: next, w: w, node: node, logger: logger, now: time.Now}
}

func (t *Tee) JoinChannel(ctx context.Context, connID, roomName string) error {
	return t.next.JoinChannel(ctx, connID, roomName)
}

func (t *Tee) LeaveChannel(ctx context.Context, connID, roomName string) error {
	return t.next.LeaveChannel(ctx, connID, roomName)
}

func (t *Tee) BroadcastToRoom(ctx context.Context, roomName, event string, payload any) error {
	if err := t.next.BroadcastToRoom(ctx, roomName, event, payload); err != nil {
		return err
	}
	t.append(ctx, roomName, Record{Kind: KindRoom, Room: roomName, Event: event}, payload)
	return nil
}

func (t *Tee) SendToConnection(ctx context.Context, connID, event string, payload any) error {
	if err := t.next.SendToConnection(ctx, connID, event, payload); err != nil {
		return err
	}
	t.append(ctx, connID, Record{Kind: KindDirect, Conn: connID, Event: event}, payload)
	return nil
}

func (t *Tee) append(ctx context.Context, key string, rec Record, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		t.logger.Warn("journal: payload not encodable", "event", rec.Event, "err", err)
		return
	}
	rec.Node = t.node
	rec.Payload = raw
	rec.At = t.now().UTC()

	value, err := json.Marshal(rec)
	if err != nil {
		t.logger.Warn("journal: record not encodable", "event", rec.Event, "err", err)
		return
	}
	msg := kafka.Message{Key: []byte(key), Value: value, Time: rec.At}
	if err := t.w.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		t.logger.Error("journal: write failed", "event", rec.Event, "key", key, "err", err)
	}
}
