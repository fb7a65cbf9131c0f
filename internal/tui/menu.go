// Package tui renders the interactive helpctl shell.
package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/danmuck/helpctl/internal/client"
)

const ChoiceExit = "exit"

// Sender issues one command. *client.Client satisfies it.
type Sender interface {
	SendCommand(ctx context.Context, command string) (client.Reply, error)
}

type replyMsg struct {
	command string
	reply   client.Reply
	err     error
}

// Menu lists the commands plus exit and prints each result above the menu.
type Menu struct {
	ctx     context.Context
	sender  Sender
	user    string
	choices []string
	cursor  int
	waiting bool
	history []string
	done    bool
}

func NewMenu(ctx context.Context, sender Sender, user string) Menu {
	return Menu{
		ctx:     ctx,
		sender:  sender,
		user:    user,
		choices: append(client.Commands(), ChoiceExit),
	}
}

func (m Menu) Init() tea.Cmd {
	return nil
}

func (m Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m.exit()
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}
		case "enter", " ":
			if m.waiting {
				return m, nil
			}
			choice := m.choices[m.cursor]
			if choice == ChoiceExit {
				return m.exit()
			}
			m.waiting = true
			return m, m.send(choice)
		}
	case replyMsg:
		m.waiting = false
		m.history = append(m.history, RenderReply(msg.command, msg.reply, msg.err))
	}
	return m, nil
}

func (m Menu) View() string {
	var b strings.Builder
	for _, h := range m.history {
		b.WriteString(h)
		b.WriteString("\n")
	}
	if m.done {
		b.WriteString(Goodbye(m.user))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(PromptStyle.Render("? select a command"))
	b.WriteString("\n")
	for i, choice := range m.choices {
		if i == m.cursor {
			b.WriteString(SelectedMenuItemStyle.Render("> " + choice))
		} else {
			b.WriteString(MenuItemStyle.Render("  " + choice))
		}
		b.WriteString("\n")
	}
	if m.waiting {
		b.WriteString(HelpStyle.Render("waiting for reply..."))
	} else {
		b.WriteString(HelpStyle.Render("↑/↓ move • enter select • q quit"))
	}
	b.WriteString("\n")
	return b.String()
}

// Done reports whether the user chose to exit.
func (m Menu) Done() bool {
	return m.done
}

func (m Menu) History() []string {
	return append([]string(nil), m.history...)
}

func (m Menu) exit() (tea.Model, tea.Cmd) {
	m.done = true
	return m, tea.Quit
}

func (m Menu) send(command string) tea.Cmd {
	ctx, sender := m.ctx, m.sender
	return func() tea.Msg {
		reply, err := sender.SendCommand(ctx, command)
		return replyMsg{command: command, reply: reply, err: err}
	}
}
