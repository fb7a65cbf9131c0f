package client

const (
	CommandCount = "count"
	CommandTime  = "time"
)

var commands = []string{CommandCount, CommandTime}

// Commands lists the recognized command names in menu order.
func Commands() []string {
	out := make([]string, len(commands))
	copy(out, commands)
	return out
}

func IsValidCommand(command string) bool {
	for _, c := range commands {
		if c == command {
			return true
		}
	}
	return false
}
