// Package session runs a Wonder conversation: the turn-taking state machine that streams replies
// and speaks them, the session lifecycle that ends in a summary, and the ambient visuals and
// soundscapes generated alongside.
package session

import (
	"context"
	"errors"

	"github.com/MegaGrindStone/wonder/internal/models"
)

var (
	// ErrTurnInProgress is returned when a turn is submitted while another one is processing or
	// speaking. The submission is dropped, not queued.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrSessionEnded is returned when a turn is submitted after the session started ending.
	ErrSessionEnded = errors.New("session has ended")
)

// ChatClient streams replies and produces the end-of-session summary.
type ChatClient interface {
	StreamChat(
		ctx context.Context,
		messages []models.Message,
		mode string,
		onDelta func(string),
		onDone func(),
	) error
	GenerateSummary(ctx context.Context, messages []models.Message) (models.SessionSummary, error)
}

// Speaker says a reply out loud and returns when playback has finished.
type Speaker interface {
	Speak(ctx context.Context, text, voiceID string) error
}

// Visualizer generates background visuals for the conversation. Generate runs in the background
// and must handle its own failures.
type Visualizer interface {
	Generate(ctx context.Context, messageIndex int, messages []models.Message)
	Close()
}

// VisualSource produces the visual and the ambient sound for a conversation.
type VisualSource interface {
	GenerateVisual(ctx context.Context, messages []models.Message) (models.Visual, error)
	SoundEffect(ctx context.Context, prompt string) ([]byte, error)
}

// LoopPlayer starts looping playback of audio.
type LoopPlayer interface {
	Loop(audio []byte, volume float64) (Track, error)
}

// Track is a looping playback whose volume can change while it plays.
type Track interface {
	Volume() float64
	SetVolume(v float64) error
	Stop() error
}

// SettingsStore holds the persisted user preferences.
type SettingsStore interface {
	VoiceID() string
	SetVoiceID(id string)
	AutoTranscript() bool
	SetAutoTranscript(v bool)
	VisualsEnabled() bool
	SetVisualsEnabled(v bool)
	AmbientEnabled() bool
	SetAmbientEnabled(v bool)
}

// Observer is told about every change the rendering layer may want to show. Callbacks are invoked
// outside of the controller's lock, possibly from background goroutines.
type Observer interface {
	StateChanged(state models.ConversationState)
	MessagesChanged(messages []models.Message)
	PhaseChanged(phase models.SessionPhase, summary *models.SessionSummary)
	BackdropChanged(backdrop models.Backdrop)
	// Notify shows a transient, dismissible notification.
	Notify(message string)
}

// NopObserver ignores every change. Embed it to implement only part of Observer.
type NopObserver struct{}

func (NopObserver) StateChanged(models.ConversationState)                    {}
func (NopObserver) MessagesChanged([]models.Message)                         {}
func (NopObserver) PhaseChanged(models.SessionPhase, *models.SessionSummary) {}
func (NopObserver) BackdropChanged(models.Backdrop)                          {}
func (NopObserver) Notify(string)                                            {}
