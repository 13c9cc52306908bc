package tui

import (
	"sync"

	"github.com/MegaGrindStone/wonder/internal/models"
	tea "github.com/charmbracelet/bubbletea"
)

// StateMsg reports a new conversation state.
type StateMsg models.ConversationState

// MessagesMsg carries the visible transcript.
type MessagesMsg []models.Message

// PhaseMsg reports a new session phase. Summary is set once the phase is summary.
type PhaseMsg struct {
	Phase   models.SessionPhase
	Summary *models.SessionSummary
}

// BackdropMsg reports what the background shows.
type BackdropMsg models.Backdrop

// NotifyMsg is a transient notification.
type NotifyMsg string

// Bridge turns session callbacks into tea messages. The model reads them one at a time through
// Listen; after Close every callback returns immediately.
type Bridge struct {
	events chan tea.Msg

	done      chan struct{}
	closeOnce sync.Once
}

// NewBridge creates a Bridge.
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan tea.Msg, 16),
		done:   make(chan struct{}),
	}
}

func (b *Bridge) StateChanged(state models.ConversationState) { b.send(StateMsg(state)) }

func (b *Bridge) MessagesChanged(messages []models.Message) { b.send(MessagesMsg(messages)) }

func (b *Bridge) PhaseChanged(phase models.SessionPhase, summary *models.SessionSummary) {
	b.send(PhaseMsg{Phase: phase, Summary: summary})
}

func (b *Bridge) BackdropChanged(backdrop models.Backdrop) { b.send(BackdropMsg(backdrop)) }

func (b *Bridge) Notify(message string) { b.send(NotifyMsg(message)) }

// Listen waits for the next event.
func (b *Bridge) Listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

// Close releases every pending and future callback.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}
