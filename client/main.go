package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/roomchat/pkg/model"
	"github.com/mahaj/roomchat/pkg/room"
	"github.com/mahaj/roomchat/pkg/wire"
)

func main() {
	serverAddr := flag.String("addr", "localhost:5000", "gateway service address")
	username := flag.String("user", "user1", "username")
	roomName := flag.String("room", "general", "room to join on connect")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	sess := &session{username: *username, room: *roomName}
	var (
		writeMu sync.Mutex
		nextID  int
	)
	send := func(cmd command) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		nextID++
		frame, err := wire.Encode(cmd.event, strconv.Itoa(nextID), cmd.data)
		if err != nil {
			return err
		}
		return c.WriteMessage(websocket.TextMessage, frame)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			f, err := wire.Decode(message)
			if err != nil {
				log.Printf("Received raw: %s", message)
				continue
			}
			fmt.Printf("\r%s\n> ", render(f))
		}
	}()

	if *roomName != "" {
		if err := send(command{event: room.EventJoinRoom, data: map[string]string{"roomName": *roomName, "username": *username}}); err != nil {
			log.Fatal("join:", err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	quit := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			cmd, err := sess.parse(scanner.Text())
			switch {
			case err == errQuit:
				close(quit)
				return
			case err != nil:
				fmt.Printf("%v\n> ", err)
				continue
			case cmd.event == "":
				fmt.Print("> ")
				continue
			}
			if err := send(cmd); err != nil {
				log.Println("write:", err)
				return
			}
			fmt.Print("> ")
		}
	}()

	var closing bool
	for !closing {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")
			closing = true
		case <-quit:
			closing = true
		}
	}

	// Cleanly close the connection by sending a close message and then
	// waiting (with timeout) for the server to close the connection.
	writeMu.Lock()
	err = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	writeMu.Unlock()
	if err != nil {
		log.Println("write close:", err)
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

// render formats one inbound frame for the terminal.
func render(f wire.Frame) string {
	if f.IsAck() {
		var ack struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(f.Data, &ack)
		if !ack.Success {
			return fmt.Sprintf("[#%s failed] %s", f.ID, ack.Message)
		}
		return fmt.Sprintf("[#%s ok] %s", f.ID, f.Data)
	}

	var data map[string]any
	_ = json.Unmarshal(f.Data, &data)
	switch f.Event {
	case model.EventNewMessage:
		return fmt.Sprintf("%v: %v", data["username"], data["message"])
	case model.EventUserJoined:
		return fmt.Sprintf("* %v joined", data["username"])
	case model.EventUserLeft:
		return fmt.Sprintf("* %v left", data["username"])
	case model.EventUserRemoved:
		return fmt.Sprintf("* %v was removed", data["username"])
	case model.EventOwnerChanged:
		return fmt.Sprintf("* %v now owns the room", data["newOwnerUsername"])
	case model.EventKickedFromRoom:
		return fmt.Sprintf("* you were removed from %v", data["roomName"])
	case model.EventTypingUpdate:
		return fmt.Sprintf("* typing: %v", data["usersTyping"])
	}
	return fmt.Sprintf("%s %s", f.Event, f.Data)
}
