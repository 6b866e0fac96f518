// Package wire is the websocket frame format shared by the gateway and the
// terminal client.
//
//	{"event": "joinRoom", "id": "3", "data": {...}}
//
// A frame with an id expects an "ack" frame carrying the same id.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventAck names acknowledgement frames.
const EventAck = "ack"

var ErrNoEvent = errors.New("frame has no event")

type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a frame around data.
func Encode(event, id string, data any) ([]byte, error) {
	f := Frame{Event: event, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// Decode parses one frame.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, ErrNoEvent
	}
	return f, nil
}

// IsAck reports whether f acknowledges a request.
func (f Frame) IsAck() bool { return f.Event == EventAck }
