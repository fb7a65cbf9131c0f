package protocol

const (
	// Delimiter separates frames on the wire. Empty frames are discarded.
	Delimiter = "\n"
	// HeartbeatToken marks server liveness messages (matched case-insensitively).
	HeartbeatToken = "heartbeat"
)

// Handshake is sent once per connection, before any request.
type Handshake struct {
	Name string `json:"name"`
}

// Request asks the server to run one command; the reply echoes ID.
type Request struct {
	Request string `json:"request"`
	ID      string `json:"id"`
}
