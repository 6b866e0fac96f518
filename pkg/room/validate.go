package room

import (
	"strings"
	"unicode/utf8"
)

const (
	maxUsernameBytes = 50
	maxRoomNameBytes = 100
	maxMessageRunes  = 2000
)

func cleanUsername(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", validation("Username is required")
	case !utf8.ValidString(s):
		return "", validation("Username must be valid UTF-8")
	case len(s) > maxUsernameBytes:
		return "", validation("Username is too long")
	}
	return s, nil
}

func cleanRoomName(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", validation("Room name is required")
	case !utf8.ValidString(s):
		return "", validation("Room name must be valid UTF-8")
	case len(s) > maxRoomNameBytes:
		return "", validation("Room name is too long")
	}
	return s, nil
}

func cleanMessage(s string) (string, error) {
	switch {
	case strings.TrimSpace(s) == "":
		return "", validation("Message is required")
	case !utf8.ValidString(s):
		return "", validation("Message must be valid UTF-8")
	case utf8.RuneCountInString(s) > maxMessageRunes:
		return "", validation("Message is too long")
	}
	return s, nil
}

func cleanRoomAndUser(roomName, username string) (string, string, error) {
	r, err := cleanRoomName(roomName)
	if err != nil {
		return "", "", err
	}
	u, err := cleanUsername(username)
	if err != nil {
		return "", "", err
	}
	return r, u, nil
}
