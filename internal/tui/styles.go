package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("147")).
			Padding(0, 1)

	orbStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 2)

	orbIdle       = lipgloss.Color("111")
	orbListening  = lipgloss.Color("86")
	orbProcessing = lipgloss.Color("183")
	orbSpeaking   = lipgloss.Color("222")

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("117"))

	wonderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("183"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("131")).
			Padding(0, 1)

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("147")).
			Padding(1, 2)

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("147"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))
)
