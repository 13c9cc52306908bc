package tui_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/MegaGrindStone/wonder/internal/session"
	"github.com/MegaGrindStone/wonder/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeSession struct {
	mu        sync.Mutex
	submitted []string
	toggles   int
	captured  int
	submitErr error
	summary   *models.SessionSummary
}

type fakeAmbience struct {
	visuals bool
	sound   bool
}

func TestModelSubmit(t *testing.T) {
	s := &fakeSession{}
	m := newModel(s, nil)

	m = typeText(m, "  hello there ")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should return a submit command")
	}
	cmd()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.submitted) != 1 || s.submitted[0] != "hello there" {
		t.Errorf("submitted = %q, want [hello there]", s.submitted)
	}
	if s.captured != 0 {
		t.Errorf("CaptureEnded() called %d times while idle", s.captured)
	}
	if strings.Contains(m.View(), "hello there") {
		t.Error("input should be cleared after submit")
	}
}

func TestModelSubmitWhileBusy(t *testing.T) {
	s := &fakeSession{}
	m := newModel(s, nil)

	m, _ = update(m, tui.StateMsg(models.StateProcessing))
	m = typeText(m, "wait")
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(s.submitted) != 0 {
		t.Errorf("submitted = %q, want nothing while busy", s.submitted)
	}
	if !strings.Contains(m.View(), "Wonder is still responding.") {
		t.Errorf("View() = %q, want busy notice", m.View())
	}
	if !strings.Contains(m.View(), "Thinking...") {
		t.Errorf("View() = %q, want Thinking... label", m.View())
	}
}

func TestModelListening(t *testing.T) {
	s := &fakeSession{}
	m := newModel(s, nil)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if s.toggles != 1 {
		t.Fatalf("ToggleListening() called %d times, want 1", s.toggles)
	}

	m, _ = update(m, tui.StateMsg(models.StateListening))
	if !strings.Contains(m.View(), "Listening...") {
		t.Errorf("View() = %q, want Listening... label", m.View())
	}

	m = typeText(m, "spoken words")
	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	if s.captured != 1 {
		t.Errorf("CaptureEnded() called %d times, want 1", s.captured)
	}
	cmd()
	if len(s.submitted) != 1 || s.submitted[0] != "spoken words" {
		t.Errorf("submitted = %q", s.submitted)
	}
}

func TestModelTranscript(t *testing.T) {
	messages := tui.MessagesMsg{
		{Role: models.RoleUser, Content: "first question"},
		{Role: models.RoleAssistant, Content: "first answer"},
		{Role: models.RoleUser, Content: "second question"},
		{Role: models.RoleAssistant, Content: "second answer"},
	}

	m := newModel(&fakeSession{}, nil)
	m, _ = update(m, messages)

	view := m.View()
	if !strings.Contains(view, "second answer") || strings.Contains(view, "first question") {
		t.Errorf("View() without transcript = %q, want only the last reply", view)
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlT})
	view = m.View()
	for _, want := range []string{"first question", "first answer", "second question", "second answer"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() with transcript missing %q", want)
		}
	}
}

func TestModelAmbienceToggles(t *testing.T) {
	amb := &fakeAmbience{visuals: true, sound: true}
	m := newModel(&fakeSession{}, amb)

	m, _ = update(m, tui.BackdropMsg(models.Backdrop{Current: "data:image/png;base64,AA", Crossfading: true, Images: 2}))
	if !strings.Contains(m.View(), "backdrop 2 · crossfading") {
		t.Errorf("View() = %q, want backdrop status", m.View())
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlV})
	if amb.visuals {
		t.Error("ctrl+v should turn visuals off")
	}
	if !strings.Contains(m.View(), "visuals off") {
		t.Errorf("View() = %q, want visuals off", m.View())
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if amb.sound {
		t.Error("ctrl+s should turn ambient sound off")
	}
	if !strings.Contains(m.View(), "Ambient sound off") {
		t.Errorf("View() = %q, want sound notice", m.View())
	}
}

func TestModelEnd(t *testing.T) {
	summary := &models.SessionSummary{Arrived: "restless", Leaving: "settled", Reflection: "you named it"}
	s := &fakeSession{summary: summary}
	m := newModel(s, nil)

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	if cmd == nil {
		t.Fatal("ctrl+e should return an end command")
	}
	m, _ = update(m, tui.PhaseMsg{Phase: models.PhaseSummarizing})
	if !strings.Contains(m.View(), "Gathering your reflection...") {
		t.Errorf("View() = %q, want summarizing screen", m.View())
	}

	m, _ = update(m, cmd())
	view := m.View()
	for _, want := range []string{"restless", "settled", "you named it"} {
		if !strings.Contains(view, want) {
			t.Errorf("summary view missing %q", want)
		}
	}

	_, cmd = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter on the summary should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("enter on the summary should quit")
	}
}

func TestModelEndWithoutSummary(t *testing.T) {
	m := newModel(&fakeSession{}, nil)

	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	m, cmd = update(m, cmd())
	if cmd == nil {
		t.Fatal("ending a short session should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ending a short session should quit")
	}
	if m.View() != "" {
		t.Errorf("View() = %q, want empty after quit", m.View())
	}
}

func TestBridge(t *testing.T) {
	b := tui.NewBridge()
	var _ session.Observer = b

	go b.Notify("hello")
	if got := b.Listen()(); got != tui.NotifyMsg("hello") {
		t.Errorf("Listen() = %v, want NotifyMsg(hello)", got)
	}

	b.Close()
	done := make(chan struct{})
	go func() {
		for range 32 {
			b.StateChanged(models.StateIdle)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callbacks blocked after Close")
	}
	if got := b.Listen()(); got != nil {
		if _, ok := got.(tui.StateMsg); !ok {
			t.Errorf("Listen() after Close = %v", got)
		}
	}
}

func newModel(s *fakeSession, amb *fakeAmbience) tui.Model {
	var a tui.Ambience
	if amb != nil {
		a = amb
	}
	b := tui.NewBridge()
	b.Close()
	return tui.NewModel(context.Background(), s, a, b, false)
}

func update(m tui.Model, msg tea.Msg) (tui.Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(tui.Model), cmd
}

func typeText(m tui.Model, text string) tui.Model {
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func (s *fakeSession) Submit(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, text)
	return s.submitErr
}

func (s *fakeSession) Greet(context.Context) error { return nil }

func (s *fakeSession) ToggleListening() bool {
	s.toggles++
	return true
}

func (s *fakeSession) CaptureEnded() { s.captured++ }

func (s *fakeSession) End(context.Context) (*models.SessionSummary, error) {
	return s.summary, nil
}

func (s *fakeSession) Mode() string { return "reflection" }

func (a *fakeAmbience) VisualsEnabled() bool { return a.visuals }
func (a *fakeAmbience) SoundEnabled() bool   { return a.sound }

func (a *fakeAmbience) SetVisualsEnabled(enabled bool) { a.visuals = enabled }
func (a *fakeAmbience) SetSoundEnabled(enabled bool)   { a.sound = enabled }
