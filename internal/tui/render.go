package tui

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/danmuck/helpctl/internal/client"
)

const Title = "Help.com TCP"

// randomThreshold is the value above which a time reply's msg.random is called out.
const randomThreshold = 30

func Banner(user, address string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		BannerStyle.Render(Title),
		SessionStyle.Render(fmt.Sprintf("user: %s, address: %s", user, address)),
	)
}

// RenderReply formats a settled command: indented JSON on success plus a
// notice for notable time replies, or the error message.
func RenderReply(command string, reply client.Reply, err error) string {
	if err != nil {
		return ErrorStyle.Render(err.Error())
	}
	body, merr := json.MarshalIndent(reply.Value, "", "    ")
	if merr != nil {
		body = []byte(reply.Raw)
	}
	out := ReplyStyle.Render(string(body))
	if command == client.CommandTime {
		if n, ok := RandomNumber(reply.Value); ok && n > randomThreshold {
			out += "\n" + NoticeStyle.Render("Found random number greater than 30: "+formatNumber(n))
		}
	}
	return out
}

// RandomNumber extracts msg.random from a decoded reply.
func RandomNumber(v any) (float64, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	msg, ok := obj["msg"].(map[string]any)
	if !ok {
		return 0, false
	}
	n, ok := msg["random"].(float64)
	return n, ok
}

func Goodbye(user string) string {
	return GoodbyeStyle.Render("Goodbye " + user)
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
