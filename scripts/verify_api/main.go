package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
)

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	roomName := flag.String("room", "general", "room to inspect")
	username := flag.String("user", "alice", "user whose rooms to list")
	flag.Parse()

	checks := []string{
		"/rooms/" + url.PathEscape(*roomName),
		"/rooms/" + url.PathEscape(*roomName) + "/messages",
		"/users/" + url.PathEscape(*username) + "/rooms",
		"/channels/" + url.PathEscape(*roomName) + "/users",
	}

	failed := 0
	for _, path := range checks {
		status, body, err := get(*apiAddr + path)
		if err != nil {
			log.Printf("%s request failed: %v", path, err)
			failed++
			continue
		}
		// 404 is a valid answer for a room or user that does not exist yet.
		if status >= 500 {
			failed++
		}
		log.Printf("%s -> %d %s", path, status, body)
	}
	if failed > 0 {
		fmt.Printf("%d of %d checks failed\n", failed, len(checks))
		os.Exit(1)
	}
	fmt.Println("API OK")
}

func get(u string) (int, string, error) {
	resp, err := http.Get(u)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}
