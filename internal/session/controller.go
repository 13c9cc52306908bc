package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/google/uuid"
)

const (
	errLoggerKey = "err"

	genericErrorMessage = "Something went wrong. Please try again."
)

// Config holds the per-session options of a Controller.
type Config struct {
	// Mode is forwarded to the chat function, "reflection" when empty.
	Mode string
	// Preamble is prepended to every request but never shown in the transcript. When nil,
	// DefaultPreamble(Mode) is used.
	Preamble []models.Message
}

// DefaultPreamble is the hidden opening instruction of a session.
func DefaultPreamble(mode string) []models.Message {
	if mode == "" {
		mode = "reflection"
	}
	return []models.Message{
		{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("[Session started in %s mode. Greet me with one short check-in question.]", mode),
		},
	}
}

// Controller owns the turn-taking of one session. It is safe for concurrent use: the conversation
// state doubles as the re-entrancy guard, so a submission made while a turn is processing or
// speaking is rejected instead of starting a second request.
type Controller struct {
	id       string
	mode     string
	preamble []models.Message

	chat     ChatClient
	speaker  Speaker
	visuals  Visualizer
	settings SettingsStore
	observer Observer

	// ctx lives as long as the session; Close cancels it, aborting in-flight requests.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    models.ConversationState
	phase    models.SessionPhase
	messages []models.Message
	summary  *models.SessionSummary
	ended    bool

	background sync.WaitGroup
	closeOnce  sync.Once

	logger *slog.Logger
}

// NewController creates the controller of a new session, starting idle with an empty transcript.
// visuals and observer may be nil.
func NewController(
	chat ChatClient,
	speaker Speaker,
	visuals Visualizer,
	settings SettingsStore,
	observer Observer,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	if observer == nil {
		observer = NopObserver{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = "reflection"
	}
	preamble := cfg.Preamble
	if preamble == nil {
		preamble = DefaultPreamble(mode)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		id:       id,
		mode:     mode,
		preamble: models.CloneMessages(preamble),
		chat:     chat,
		speaker:  speaker,
		visuals:  visuals,
		settings: settings,
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
		state:    models.StateIdle,
		phase:    models.PhaseActive,
		logger: logger.With(
			slog.String("module", "session"),
			slog.String("sessionID", id),
		),
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Mode returns the conversation mode.
func (c *Controller) Mode() string { return c.mode }

// State returns the current conversation state.
func (c *Controller) State() models.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Phase returns the current session phase.
func (c *Controller) Phase() models.SessionPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Messages returns a copy of the visible transcript.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CloneMessages(c.messages)
}

// Summary returns the session summary once the session reached the summary phase.
func (c *Controller) Summary() *models.SessionSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Submit runs one turn for the user's text, typed or transcribed, and returns when the reply has
// been streamed and spoken. Blank text is ignored. While another turn is in flight the text is
// dropped with ErrTurnInProgress and nothing changes. Turn failures are reported to the observer
// as a notification and returned; the state is back to idle either way.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.runTurn(ctx, &models.Message{Role: models.RoleUser, Content: text})
}

// Greet runs the opening turn: the companion replies to the hidden preamble alone, so it speaks
// first without any visible user message.
func (c *Controller) Greet(ctx context.Context) error {
	return c.runTurn(ctx, nil)
}

// ToggleListening switches voice capture. It moves idle to listening and reports true, moves
// listening back to idle, and does nothing while a turn is in flight.
func (c *Controller) ToggleListening() bool {
	c.mu.Lock()
	var listening bool
	switch c.state {
	case models.StateIdle:
		c.state = models.StateListening
		listening = true
	case models.StateListening:
		c.state = models.StateIdle
	default:
		c.mu.Unlock()
		return false
	}
	state := c.state
	c.mu.Unlock()

	c.observer.StateChanged(state)
	return listening
}

// CaptureEnded is called by the capture subsystem at the end of speech. It only returns to idle
// when the session is still listening, so it never clobbers a turn that started meanwhile.
func (c *Controller) CaptureEnded() {
	c.mu.Lock()
	if c.state != models.StateListening {
		c.mu.Unlock()
		return
	}
	c.state = models.StateIdle
	c.mu.Unlock()

	c.observer.StateChanged(models.StateIdle)
}

// End finishes the session. With fewer than two messages there is nothing to reflect on and it
// returns a nil summary. Otherwise the session goes through summarizing to summary; when the summary
// cannot be generated a fallback is used, so the summary phase is always reached.
func (c *Controller) End(ctx context.Context) (*models.SessionSummary, error) {
	c.mu.Lock()
	if c.phase != models.PhaseActive || c.ended {
		summary := c.summary
		c.mu.Unlock()
		return summary, nil
	}
	if len(c.messages) < 2 {
		c.ended = true
		c.mu.Unlock()
		c.logger.Info("Session ended without summary")
		return nil, nil
	}
	c.phase = models.PhaseSummarizing
	messages := models.CloneMessages(c.messages)
	c.mu.Unlock()

	c.observer.PhaseChanged(models.PhaseSummarizing, nil)

	summary, err := c.chat.GenerateSummary(ctx, messages)
	if err != nil {
		c.logger.Error("Failed to generate summary, using fallback", slog.String(errLoggerKey, err.Error()))
		summary = models.FallbackSummary()
	}

	c.mu.Lock()
	c.summary = &summary
	c.phase = models.PhaseSummary
	c.mu.Unlock()

	c.observer.PhaseChanged(models.PhaseSummary, &summary)
	return &summary, nil
}

// Close tears the session down: in-flight requests are cancelled, ambient sound stops and
// background work is awaited.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.ended = true
		c.mu.Unlock()

		c.cancel()
		if c.visuals != nil {
			c.visuals.Close()
		}
		c.background.Wait()
		c.logger.Debug("Session closed")
	})
}

func (c *Controller) runTurn(ctx context.Context, userMsg *models.Message) error {
	c.mu.Lock()
	if c.phase != models.PhaseActive || c.ended {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	if c.state.Busy() {
		c.mu.Unlock()
		c.logger.Debug("Turn dropped while another is in flight")
		return ErrTurnInProgress
	}
	if userMsg != nil {
		c.messages = append(c.messages, *userMsg)
	}
	c.state = models.StateProcessing
	history := append(models.CloneMessages(c.preamble), c.messages...)
	messages := models.CloneMessages(c.messages)
	c.mu.Unlock()

	defer c.finishTurn()

	if userMsg != nil {
		c.observer.MessagesChanged(messages)
	}
	c.observer.StateChanged(models.StateProcessing)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	err := c.turn(ctx, history)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		c.logger.Info("Turn cancelled")
		return nil
	}

	c.logger.Error("Turn failed", slog.String(errLoggerKey, err.Error()))
	msg := err.Error()
	if msg == "" {
		msg = genericErrorMessage
	}
	c.observer.Notify(msg)
	return err
}

// turn streams the reply into the transcript, then speaks it.
func (c *Controller) turn(ctx context.Context, history []models.Message) error {
	var (
		reply   strings.Builder
		started bool
		done    bool
	)

	err := c.chat.StreamChat(ctx, history, c.mode,
		func(delta string) {
			reply.WriteString(delta)

			c.mu.Lock()
			last := len(c.messages) - 1
			if started && last >= 0 && c.messages[last].Role == models.RoleAssistant {
				c.messages[last].Content = reply.String()
			} else {
				c.messages = append(c.messages, models.Message{
					Role:    models.RoleAssistant,
					Content: reply.String(),
				})
				started = true
			}
			messages := models.CloneMessages(c.messages)
			c.mu.Unlock()

			c.observer.MessagesChanged(messages)
		},
		func() { done = true },
	)
	if err != nil {
		return err
	}

	text := reply.String()
	if !done || strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	c.state = models.StateSpeaking
	index := len(c.messages) - 1
	messages := models.CloneMessages(c.messages)
	c.mu.Unlock()
	c.observer.StateChanged(models.StateSpeaking)

	c.spawnVisuals(index, messages)

	if c.speaker == nil {
		return nil
	}
	voiceID := models.DefaultVoiceID
	if c.settings != nil {
		voiceID = c.settings.VoiceID()
	}
	return c.speaker.Speak(ctx, text, voiceID)
}

func (c *Controller) spawnVisuals(index int, messages []models.Message) {
	if c.visuals == nil {
		return
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		c.visuals.Generate(c.ctx, index, messages)
	}()
}

func (c *Controller) finishTurn() {
	c.mu.Lock()
	c.state = models.StateIdle
	c.mu.Unlock()
	c.observer.StateChanged(models.StateIdle)
}
