package session

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/MegaGrindStone/wonder/internal/models"
)

const (
	defaultCrossfadeDelay    = 100 * time.Millisecond
	defaultCrossfadeDuration = 2500 * time.Millisecond
	defaultFadeInterval      = 100 * time.Millisecond
	defaultFadeStep          = 0.02
	defaultAmbientVolume     = 0.15
)

// Ambience generates the background of a session: an image per assistant reply, crossfaded over
// the previous one, and a looping ambient soundscape that fades between prompts. It implements
// Visualizer. Failures are logged and never reach the conversation.
type Ambience struct {
	source   VisualSource
	player   LoopPlayer
	settings SettingsStore
	observer Observer

	crossfadeDelay    time.Duration
	crossfadeDuration time.Duration
	fadeInterval      time.Duration
	fadeStep          float64
	maxVolume         float64

	mu             sync.Mutex
	visualsEnabled bool
	soundEnabled   bool
	images         map[int]string
	current        string
	previous       string
	crossfading    bool
	generation     int
	track          Track
	closed         bool

	done      chan struct{}
	fades     sync.WaitGroup
	closeOnce sync.Once

	logger *slog.Logger
}

// NewAmbience creates an Ambience. The initial toggles are read from settings. player may be nil,
// in which case soundscapes are never played.
func NewAmbience(
	source VisualSource,
	player LoopPlayer,
	settings SettingsStore,
	observer Observer,
	logger *slog.Logger,
) *Ambience {
	if observer == nil {
		observer = NopObserver{}
	}
	visuals, sound := true, true
	if settings != nil {
		visuals = settings.VisualsEnabled()
		sound = settings.AmbientEnabled()
	}
	return &Ambience{
		source:            source,
		player:            player,
		settings:          settings,
		observer:          observer,
		crossfadeDelay:    defaultCrossfadeDelay,
		crossfadeDuration: defaultCrossfadeDuration,
		fadeInterval:      defaultFadeInterval,
		fadeStep:          defaultFadeStep,
		maxVolume:         defaultAmbientVolume,
		visualsEnabled:    visuals,
		soundEnabled:      sound,
		images:            make(map[int]string),
		done:              make(chan struct{}),
		logger:            logger.With(slog.String("module", "ambience")),
	}
}

// Generate asks for a visual describing messages. An image is recorded under messageIndex and
// crossfaded in; a soundscape prompt starts new ambient sound when sound is enabled. It does
// nothing while visuals are disabled.
func (a *Ambience) Generate(ctx context.Context, messageIndex int, messages []models.Message) {
	a.mu.Lock()
	enabled := a.visualsEnabled && !a.closed
	a.mu.Unlock()
	if !enabled {
		return
	}

	visual, err := a.source.GenerateVisual(ctx, messages)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Warn("Failed to generate visual", slog.String(errLoggerKey, err.Error()))
		}
		return
	}

	if visual.ImageBase64 != nil && *visual.ImageBase64 != "" {
		a.mu.Lock()
		a.images[messageIndex] = *visual.ImageBase64
		a.mu.Unlock()
		a.crossfade(ctx, *visual.ImageBase64)
	}

	if visual.SoundscapePrompt != nil && *visual.SoundscapePrompt != "" {
		a.playAmbient(ctx, *visual.SoundscapePrompt)
	}
}

// Images returns the generated images keyed by the index of the message they illustrate.
func (a *Ambience) Images() map[int]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.images)
}

// Backdrop returns what the background currently shows.
func (a *Ambience) Backdrop() models.Backdrop {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backdropLocked()
}

// VisualsEnabled reports whether new visuals are generated.
func (a *Ambience) VisualsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.visualsEnabled
}

// SoundEnabled reports whether ambient sound plays.
func (a *Ambience) SoundEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.soundEnabled
}

// SetVisualsEnabled turns visual generation on or off and persists the choice.
func (a *Ambience) SetVisualsEnabled(enabled bool) {
	a.mu.Lock()
	a.visualsEnabled = enabled
	a.mu.Unlock()

	if a.settings != nil {
		a.settings.SetVisualsEnabled(enabled)
	}
}

// SetSoundEnabled turns ambient sound on or off and persists the choice. Turning it off stops the
// sound that is playing.
func (a *Ambience) SetSoundEnabled(enabled bool) {
	a.mu.Lock()
	a.soundEnabled = enabled
	var track Track
	if !enabled {
		track = a.track
		a.track = nil
	}
	a.mu.Unlock()

	if a.settings != nil {
		a.settings.SetAmbientEnabled(enabled)
	}
	a.stopTrack(track)
}

// Close stops the ambient sound, releases its player and waits for running fades. Generate calls
// after Close do nothing.
func (a *Ambience) Close() {
	a.closeOnce.Do(func() {
		close(a.done)

		a.mu.Lock()
		a.closed = true
		track := a.track
		a.track = nil
		a.mu.Unlock()

		a.stopTrack(track)
		a.fades.Wait()
	})
}

func (a *Ambience) crossfade(ctx context.Context, image string) {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	a.previous = a.current
	a.crossfading = true
	backdrop := a.backdropLocked()
	a.mu.Unlock()
	a.observer.BackdropChanged(backdrop)

	if a.wait(ctx, a.crossfadeDelay) {
		if !a.setBackdrop(gen, func() { a.current = image }) {
			return
		}
		a.wait(ctx, a.crossfadeDuration)
	}

	// Settle even when interrupted, so the backdrop never stays half faded.
	a.setBackdrop(gen, func() {
		a.current = image
		a.previous = ""
		a.crossfading = false
	})
}

// setBackdrop applies update when no newer crossfade started, and reports whether it did.
func (a *Ambience) setBackdrop(gen int, update func()) bool {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return false
	}
	update()
	backdrop := a.backdropLocked()
	a.mu.Unlock()

	a.observer.BackdropChanged(backdrop)
	return true
}

func (a *Ambience) playAmbient(ctx context.Context, prompt string) {
	if a.player == nil || !a.SoundEnabled() {
		return
	}

	audio, err := a.source.SoundEffect(ctx, prompt)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Warn("Failed to generate ambient sound", slog.String(errLoggerKey, err.Error()))
		}
		return
	}

	track, err := a.player.Loop(audio, 0)
	if err != nil {
		a.logger.Warn("Failed to play ambient sound", slog.String(errLoggerKey, err.Error()))
		return
	}

	a.mu.Lock()
	if a.closed || !a.soundEnabled {
		a.mu.Unlock()
		a.stopTrack(track)
		return
	}
	old := a.track
	a.track = track
	if old != nil {
		a.fades.Add(1)
	}
	a.mu.Unlock()

	if old != nil {
		go func() {
			defer a.fades.Done()
			a.fadeOut(ctx, old)
		}()
	}
	a.fadeIn(ctx, track)
}

func (a *Ambience) fadeIn(ctx context.Context, track Track) {
	for volume := track.Volume(); volume < a.maxVolume; {
		if !a.wait(ctx, a.fadeInterval) || !a.isCurrent(track) {
			return
		}
		volume = min(volume+a.fadeStep, a.maxVolume)
		if err := track.SetVolume(volume); err != nil {
			a.logger.Debug("Failed to raise ambient volume", slog.String(errLoggerKey, err.Error()))
		}
	}
}

func (a *Ambience) fadeOut(ctx context.Context, track Track) {
	defer a.stopTrack(track)

	for volume := track.Volume(); volume > 0; {
		if !a.wait(ctx, a.fadeInterval) {
			return
		}
		volume = max(volume-a.fadeStep, 0)
		if err := track.SetVolume(volume); err != nil {
			a.logger.Debug("Failed to lower ambient volume", slog.String(errLoggerKey, err.Error()))
		}
	}
}

func (a *Ambience) isCurrent(track Track) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.track == track
}

func (a *Ambience) stopTrack(track Track) {
	if track == nil {
		return
	}
	if err := track.Stop(); err != nil {
		a.logger.Warn("Failed to stop ambient sound", slog.String(errLoggerKey, err.Error()))
	}
}

// wait sleeps for d and reports false when interrupted by ctx or Close.
func (a *Ambience) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-a.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (a *Ambience) backdropLocked() models.Backdrop {
	return models.Backdrop{
		Current:     a.current,
		Previous:    a.previous,
		Crossfading: a.crossfading,
		Images:      len(a.images),
	}
}
