package services

import (
	"context"
	"fmt"
	"log/slog"
)

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// AudioPlayer plays audio to completion.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
}

// Voice speaks assistant replies: markdown is reduced to plain text, synthesized, then played.
type Voice struct {
	synthesizer Synthesizer
	player      AudioPlayer

	logger *slog.Logger
}

// NewVoice creates a Voice.
func NewVoice(synthesizer Synthesizer, player AudioPlayer, logger *slog.Logger) Voice {
	return Voice{
		synthesizer: synthesizer,
		player:      player,
		logger:      logger.With(slog.String("module", "voice")),
	}
}

// Speak says text with voiceID and returns once playback has finished.
func (v Voice) Speak(ctx context.Context, text, voiceID string) error {
	speech := SpeakableText(text)
	if speech == "" {
		return nil
	}

	audio, err := v.synthesizer.Synthesize(ctx, speech, voiceID)
	if err != nil {
		return fmt.Errorf("error synthesizing speech: %w", err)
	}
	v.logger.Debug("Speaking", slog.String("voiceID", voiceID), slog.Int("bytes", len(audio)))

	if err := v.player.Play(ctx, audio); err != nil {
		return fmt.Errorf("error playing speech: %w", err)
	}
	return nil
}
