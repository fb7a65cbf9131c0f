package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorBlue   = lipgloss.Color("12")
	colorGreen  = lipgloss.Color("10")
	colorYellow = lipgloss.Color("11")
	colorRed    = lipgloss.Color("9")
	colorMuted  = lipgloss.Color("8")
)

var (
	BannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorBlue).
			Padding(0, 2)

	SessionStyle = lipgloss.NewStyle().
			Background(colorBlue).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	ReplyStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	NoticeStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	GoodbyeStyle = lipgloss.NewStyle().Foreground(colorBlue)

	PromptStyle = lipgloss.NewStyle().Bold(true)

	MenuItemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	SelectedMenuItemStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true).
				PaddingLeft(2)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)
)
