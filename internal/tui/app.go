// Package tui is the terminal face of a Wonder session: the orb status, the transcript, the
// notifications and the end-of-session summary.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/MegaGrindStone/wonder/internal/session"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Session is the conversation the model drives.
type Session interface {
	Submit(ctx context.Context, text string) error
	Greet(ctx context.Context) error
	ToggleListening() bool
	CaptureEnded()
	End(ctx context.Context) (*models.SessionSummary, error)
	Mode() string
}

// Ambience holds the visual and ambient sound toggles.
type Ambience interface {
	VisualsEnabled() bool
	SoundEnabled() bool
	SetVisualsEnabled(enabled bool)
	SetSoundEnabled(enabled bool)
}

// Events delivers the session callbacks, usually a *Bridge.
type Events interface {
	Listen() tea.Cmd
}

type turnDoneMsg struct{ err error }

type endedMsg struct {
	summary *models.SessionSummary
	err     error
}

type dismissMsg struct{ seq int }

const noticeTimeout = 5 * time.Second

// Model is the bubbletea model of one session.
type Model struct {
	ctx      context.Context
	session  Session
	ambience Ambience
	events   Events

	state      models.ConversationState
	phase      models.SessionPhase
	messages   []models.Message
	summary    *models.SessionSummary
	backdrop   models.Backdrop
	transcript bool
	notice     string
	noticeSeq  int
	ending     bool

	input  textinput.Model
	width  int
	height int

	quitting bool
}

// NewModel creates the model. transcript is the initial transcript visibility; ambience may be nil.
func NewModel(ctx context.Context, s Session, ambience Ambience, events Events, transcript bool) Model {
	ti := textinput.New()
	ti.Placeholder = "Say something..."
	ti.CharLimit = 2000
	ti.Focus()

	return Model{
		ctx:        ctx,
		session:    s,
		ambience:   ambience,
		events:     events,
		state:      models.StateIdle,
		phase:      models.PhaseActive,
		transcript: transcript,
		input:      ti,
		width:      80,
		height:     24,
	}
}

// Init greets the user and starts listening for session events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.events.Listen(), m.greet())
}

func (m Model) greet() tea.Cmd {
	return func() tea.Msg {
		return turnDoneMsg{err: m.session.Greet(m.ctx)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-6)
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case StateMsg:
		m.state = models.ConversationState(msg)
		return m, m.events.Listen()

	case MessagesMsg:
		m.messages = []models.Message(msg)
		return m, m.events.Listen()

	case PhaseMsg:
		m.phase = msg.Phase
		if msg.Summary != nil {
			m.summary = msg.Summary
		}
		return m, m.events.Listen()

	case BackdropMsg:
		m.backdrop = models.Backdrop(msg)
		return m, m.events.Listen()

	case NotifyMsg:
		cmd := m.notify(string(msg))
		return m, tea.Batch(cmd, m.events.Listen())

	case dismissMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case turnDoneMsg:
		if errors.Is(msg.err, session.ErrTurnInProgress) {
			cmd := m.notify("Wonder is still responding.")
			return m, cmd
		}
		return m, nil

	case endedMsg:
		m.ending = false
		if msg.err != nil {
			cmd := m.notify(msg.err.Error())
			return m, cmd
		}
		if msg.summary == nil {
			m.quitting = true
			return m, tea.Quit
		}
		m.summary = msg.summary
		m.phase = models.PhaseSummary
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	}

	if m.phase != models.PhaseActive {
		if msg.String() == "enter" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "enter":
		return m.submit()

	case "ctrl+l":
		m.session.ToggleListening()
		return m, nil

	case "ctrl+t":
		m.transcript = !m.transcript
		return m, nil

	case "ctrl+v":
		if m.ambience == nil {
			return m, nil
		}
		enabled := !m.ambience.VisualsEnabled()
		m.ambience.SetVisualsEnabled(enabled)
		cmd := m.notify("Visuals " + onOff(enabled))
		return m, cmd

	case "ctrl+s":
		if m.ambience == nil {
			return m, nil
		}
		enabled := !m.ambience.SoundEnabled()
		m.ambience.SetSoundEnabled(enabled)
		cmd := m.notify("Ambient sound " + onOff(enabled))
		return m, cmd

	case "ctrl+e":
		if m.ending {
			return m, nil
		}
		m.ending = true
		return m, m.end()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the typed text. While listening the text stands in for the transcribed speech, so
// capture ends first.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.state.Busy() {
		cmd := m.notify("Wonder is still responding.")
		return m, cmd
	}
	m.input.Reset()

	if m.state == models.StateListening {
		m.session.CaptureEnded()
	}
	s, ctx := m.session, m.ctx
	return m, func() tea.Msg {
		return turnDoneMsg{err: s.Submit(ctx, text)}
	}
}

func (m Model) end() tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		summary, err := s.End(ctx)
		return endedMsg{summary: summary, err: err}
	}
}

// notify shows message until it is replaced or times out.
func (m *Model) notify(message string) tea.Cmd {
	m.noticeSeq++
	m.notice = message
	seq := m.noticeSeq
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return dismissMsg{seq: seq}
	})
}

// View renders the model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.phase != models.PhaseActive {
		return m.summaryView()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("wonder"))
	b.WriteString(dimStyle.Render(" · " + m.session.Mode()))
	b.WriteString("\n\n")
	b.WriteString(m.orbView())
	b.WriteString("\n\n")

	if m.transcript {
		b.WriteString(m.transcriptView())
	} else if last := m.lastReply(); last != "" {
		b.WriteString(wonderStyle.Render("wonder ") + last + "\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(m.backdropView()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(
		"enter send · ctrl+l listen · ctrl+t transcript · ctrl+v visuals · ctrl+s sound · ctrl+e end · esc quit"))
	return b.String()
}

func (m Model) orbView() string {
	color := orbIdle
	switch m.state {
	case models.StateListening:
		color = orbListening
	case models.StateProcessing:
		color = orbProcessing
	case models.StateSpeaking:
		color = orbSpeaking
	}
	orb := orbStyle.Foreground(color).Render("( ● )")
	return lipgloss.JoinHorizontal(lipgloss.Center, orb, labelStyle.Render(m.state.Label()))
}

func (m Model) transcriptView() string {
	if len(m.messages) == 0 {
		return dimStyle.Render("No messages yet.") + "\n"
	}

	// Only the tail that fits above the input.
	limit := max(1, (m.height-12)/2)
	var b strings.Builder
	for _, msg := range models.LastN(m.messages, limit) {
		who := userStyle.Render("you    ")
		if msg.Role == models.RoleAssistant {
			who = wonderStyle.Render("wonder ")
		}
		b.WriteString(who)
		b.WriteString(lipgloss.NewStyle().Width(max(20, m.width-8)).Render(msg.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) lastReply() string {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == models.RoleAssistant {
			return m.messages[i].Content
		}
	}
	return ""
}

func (m Model) backdropView() string {
	if m.ambience != nil && !m.ambience.VisualsEnabled() {
		return "visuals off"
	}
	switch {
	case m.backdrop.Current == "":
		return "no backdrop yet"
	case m.backdrop.Crossfading:
		return fmt.Sprintf("backdrop %d · crossfading", m.backdrop.Images)
	default:
		return fmt.Sprintf("backdrop %d", m.backdrop.Images)
	}
}

func (m Model) summaryView() string {
	if m.phase == models.PhaseSummarizing || m.summary == nil {
		return titleStyle.Render("wonder") + "\n\n" + labelStyle.Render("Gathering your reflection...")
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		headingStyle.Render("You arrived"),
		m.summary.Arrived,
		"",
		headingStyle.Render("You're leaving"),
		m.summary.Leaving,
		"",
		headingStyle.Render("Reflection"),
		m.summary.Reflection,
	)
	return summaryStyle.Width(max(30, min(m.width-4, 72))).Render(body) + "\n" +
		helpStyle.Render("enter close")
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
