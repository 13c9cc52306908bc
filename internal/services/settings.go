package services

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/MegaGrindStone/wonder/internal/models"
)

// KV is the persistence Settings is built on.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Settings exposes the persisted user preferences with their defaults. Values are read once at
// construction and written through on every change. Storage failures are logged and the in-memory
// value stays authoritative, so a broken store never blocks a session.
type Settings struct {
	kv KV

	mu             sync.RWMutex
	voiceID        string
	autoTranscript bool
	visuals        bool
	ambient        bool

	logger *slog.Logger
}

// NewSettings loads the preferences from kv. Missing keys take their defaults: the default voice
// and every toggle enabled.
func NewSettings(ctx context.Context, kv KV, logger *slog.Logger) *Settings {
	s := &Settings{
		kv:     kv,
		logger: logger.With(slog.String("module", "settings")),
	}
	s.voiceID = s.load(ctx, models.SettingVoice, models.DefaultVoiceID)
	s.autoTranscript = s.load(ctx, models.SettingAutoTranscript, "true") != "false"
	s.visuals = s.load(ctx, models.SettingVisuals, "true") != "false"
	s.ambient = s.load(ctx, models.SettingAmbient, "true") != "false"
	return s
}

func (s *Settings) load(ctx context.Context, key, def string) string {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Error("Failed to read setting", slog.String("key", key), slog.String(errLoggerKey, err.Error()))
		return def
	}
	if !ok || v == "" {
		return def
	}
	return v
}

func (s *Settings) store(key, value string) {
	if err := s.kv.Set(context.Background(), key, value); err != nil {
		s.logger.Error("Failed to write setting", slog.String("key", key), slog.String(errLoggerKey, err.Error()))
	}
}

// VoiceID returns the selected text-to-speech voice.
func (s *Settings) VoiceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceID
}

// SetVoiceID selects a voice.
func (s *Settings) SetVoiceID(id string) {
	s.mu.Lock()
	s.voiceID = id
	s.mu.Unlock()
	s.store(models.SettingVoice, id)
}

// AutoTranscript reports whether the transcript is shown when a session starts.
func (s *Settings) AutoTranscript() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoTranscript
}

func (s *Settings) SetAutoTranscript(v bool) {
	s.mu.Lock()
	s.autoTranscript = v
	s.mu.Unlock()
	s.store(models.SettingAutoTranscript, strconv.FormatBool(v))
}

// VisualsEnabled reports whether background visuals are generated.
func (s *Settings) VisualsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visuals
}

func (s *Settings) SetVisualsEnabled(v bool) {
	s.mu.Lock()
	s.visuals = v
	s.mu.Unlock()
	s.store(models.SettingVisuals, strconv.FormatBool(v))
}

// AmbientEnabled reports whether ambient soundscapes are played.
func (s *Settings) AmbientEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ambient
}

func (s *Settings) SetAmbientEnabled(v bool) {
	s.mu.Lock()
	s.ambient = v
	s.mu.Unlock()
	s.store(models.SettingAmbient, strconv.FormatBool(v))
}
