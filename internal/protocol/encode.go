package protocol

import (
	"encoding/json"
	"strings"
)

// EncodeHandshake renders {"name":"<user>"} without the trailing delimiter.
func EncodeHandshake(user string) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", ErrMissingUser
	}
	b, err := json.Marshal(Handshake{Name: user})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeRequest renders {"request":"<command>","id":"<id>"} without the trailing delimiter.
func EncodeRequest(command, id string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", ErrMissingCommand
	}
	if strings.TrimSpace(id) == "" {
		return "", ErrMissingRequestID
	}
	b, err := json.Marshal(Request{Request: command, ID: id})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
