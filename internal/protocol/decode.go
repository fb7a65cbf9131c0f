package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SplitMessages splits one inbound chunk on the delimiter, dropping empty frames.
// Order is preserved.
func SplitMessages(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	parts := strings.Split(string(chunk), Delimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func IsHeartbeat(msg string) bool {
	return containsFold(msg, HeartbeatToken)
}

// MatchesID reports whether msg carries id anywhere in its text.
func MatchesID(msg, id string) bool {
	if id == "" {
		return false
	}
	return containsFold(msg, id)
}

// DecodeReply parses a matched reply into a generic JSON value.
func DecodeReply(msg string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(msg), &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return v, nil
}

// DecodeHandshake parses a handshake frame. Used by test peers and tooling.
func DecodeHandshake(msg string) (Handshake, error) {
	var h Handshake
	if err := json.Unmarshal([]byte(msg), &h); err != nil {
		return Handshake{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if strings.TrimSpace(h.Name) == "" {
		return Handshake{}, ErrMissingUser
	}
	return h, nil
}

// DecodeRequest parses a request frame. Used by test peers and tooling.
func DecodeRequest(msg string) (Request, error) {
	var r Request
	if err := json.Unmarshal([]byte(msg), &r); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if strings.TrimSpace(r.Request) == "" {
		return Request{}, ErrMissingCommand
	}
	if strings.TrimSpace(r.ID) == "" {
		return Request{}, ErrMissingRequestID
	}
	return r, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
