package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mahaj/roomchat/pkg/room"
)

var errQuit = errors.New("quit")

// command is one outbound frame built from a line of input.
type command struct {
	event string
	data  any
}

// session tracks who we are and which room plain text goes to.
type session struct {
	username string
	room     string
}

const usage = `commands:
  /create <room>   create a room and join it
  /join <room>     join a room and make it current
  /leave           leave the current room
  /room <room>     switch the current room without joining
  /typing, /stop   typing indicator
  /rooms           list your rooms
  /history         messages of the current room
  /check <room>    room details
  /kick <user>     remove a user from the current room
  /quit`

func (s *session) parse(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		if s.room == "" {
			return command{}, errors.New("join a room first")
		}
		return s.inRoom(room.EventSendMessage, map[string]string{"message": line}), nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	needArg := func() error {
		if arg == "" {
			return fmt.Errorf("/%s needs an argument", name)
		}
		return nil
	}

	switch name {
	case "quit":
		return command{}, errQuit
	case "help":
		return command{}, errors.New(usage)
	case "create":
		if err := needArg(); err != nil {
			return command{}, err
		}
		s.room = arg
		return command{event: room.EventCreateRoom, data: map[string]string{"name": arg, "username": s.username}}, nil
	case "join":
		if err := needArg(); err != nil {
			return command{}, err
		}
		s.room = arg
		return s.inRoom(room.EventJoinRoom, nil), nil
	case "room":
		if err := needArg(); err != nil {
			return command{}, err
		}
		s.room = arg
		return command{}, nil
	case "leave":
		cmd := s.inRoom(room.EventLeaveRoom, nil)
		s.room = ""
		return cmd, nil
	case "typing":
		return s.inRoom(room.EventTyping, nil), nil
	case "stop":
		return s.inRoom(room.EventStopTyping, nil), nil
	case "rooms":
		return command{event: room.EventGetUserRooms, data: map[string]string{"username": s.username}}, nil
	case "history":
		return command{event: room.EventGetRoomMessages, data: map[string]string{"roomName": s.room}}, nil
	case "check":
		if err := needArg(); err != nil {
			return command{}, err
		}
		return command{event: room.EventCheckRoom, data: arg}, nil
	case "kick":
		if err := needArg(); err != nil {
			return command{}, err
		}
		return command{event: room.EventRemoveUserFromRoom, data: map[string]string{"roomName": s.room, "username": arg}}, nil
	}
	return command{}, fmt.Errorf("unknown command /%s, try /help", name)
}

func (s *session) inRoom(event string, extra map[string]string) command {
	data := map[string]string{"roomName": s.room, "username": s.username}
	for k, v := range extra {
		data[k] = v
	}
	return command{event: event, data: data}
}
