package room

import (
	"context"
	"errors"
	"fmt"
)

// Dispatch runs ev for connID. The second result is false for events that
// carry no acknowledgement (typing, stopTyping); their failures are logged.
func (c *Coordinator) Dispatch(ctx context.Context, connID string, ev Event) (ack Ack, acked bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", "event", ev.EventName(), "conn", connID, "panic", r)
			ack, acked = failed(internal("Internal server error", fmt.Errorf("panic: %v", r))), Acked(ev)
		}
	}()

	var (
		result any
		err    error
	)
	switch e := ev.(type) {
	case CreateRoom:
		result, err = c.CreateRoom(ctx, connID, e)
	case JoinRoom:
		result, err = c.JoinRoom(ctx, connID, e)
	case LeaveRoom:
		var res LeaveRoomResult
		if res, err = c.LeaveRoom(ctx, connID, e); err == nil {
			return Ack{Success: true, Message: fmt.Sprintf("Left room %s successfully", res.RoomName), Result: res}, true
		}
	case SendMessage:
		err = c.SendMessage(ctx, connID, e)
	case Typing:
		c.logDropped(ev, connID, c.Typing(ctx, connID, e))
		return Ack{}, false
	case StopTyping:
		c.logDropped(ev, connID, c.StopTyping(ctx, connID, e))
		return Ack{}, false
	case GetUserRooms:
		result, err = c.GetUserRooms(ctx, e)
	case GetRoomMessages:
		result, err = c.GetRoomMessages(ctx, e)
	case RemoveUserFromRoom:
		err = c.RemoveUserFromRoom(ctx, connID, e)
	case CheckRoom:
		result, err = c.CheckRoom(ctx, e)
	case CheckRooms:
		result = c.CheckRooms(ctx, connID)
	default:
		err = validation(fmt.Sprintf("Unsupported event %s", ev.EventName()))
	}

	if err != nil {
		c.logFailure(ev, connID, err)
		return failed(err), true
	}
	return succeeded(result), true
}

func (c *Coordinator) logFailure(ev Event, connID string, err error) {
	if errors.Is(err, ErrInternal) {
		c.logger.Error("event failed", "event", ev.EventName(), "conn", connID, "err", err)
		return
	}
	c.logger.Info("event rejected", "event", ev.EventName(), "conn", connID, "err", err)
}

func (c *Coordinator) logDropped(ev Event, connID string, err error) {
	if err != nil {
		c.logger.Warn("event dropped", "event", ev.EventName(), "conn", connID, "err", err)
	}
}
