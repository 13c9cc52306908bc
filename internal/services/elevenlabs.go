package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/MegaGrindStone/wonder/internal/models"
)

const (
	elevenLabsAPIEndpoint  = "https://api.elevenlabs.io/v1"
	elevenLabsDefaultModel = "eleven_turbo_v2_5"
	// Sound effects are short ambient beds that are looped by the client.
	elevenLabsSFXSeconds = 8.0
)

// ElevenLabs synthesizes speech and sound effects with the ElevenLabs REST API.
type ElevenLabs struct {
	apiKey       string
	endpoint     string
	model        string
	defaultVoice string

	client *http.Client

	logger *slog.Logger
}

type elevenLabsSpeechRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type elevenLabsSoundRequest struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// NewElevenLabs creates an ElevenLabs client. Empty model and defaultVoice use the built-in defaults,
// an empty endpoint targets the public API.
func NewElevenLabs(apiKey, endpoint, model, defaultVoice string, logger *slog.Logger) ElevenLabs {
	if endpoint == "" {
		endpoint = elevenLabsAPIEndpoint
	}
	if model == "" {
		model = elevenLabsDefaultModel
	}
	if defaultVoice == "" {
		defaultVoice = models.DefaultVoiceID
	}
	return ElevenLabs{
		apiKey:       strings.TrimSpace(apiKey),
		endpoint:     strings.TrimRight(endpoint, "/"),
		model:        model,
		defaultVoice: defaultVoice,
		client:       &http.Client{},
		logger:       logger.With(slog.String("module", "elevenlabs")),
	}
}

// TextToSpeech returns MP3 audio of text spoken by voiceID, or by the default voice when empty.
func (e ElevenLabs) TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is required")
	}
	if voiceID == "" {
		voiceID = e.defaultVoice
	}
	path := "/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=mp3_44100_128"
	return e.post(ctx, path, elevenLabsSpeechRequest{Text: text, ModelID: e.model})
}

// SoundEffect returns MP3 audio of a short sound effect described by prompt.
func (e ElevenLabs) SoundEffect(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	return e.post(ctx, "/sound-generation", elevenLabsSoundRequest{
		Text:            prompt,
		DurationSeconds: elevenLabsSFXSeconds,
	})
}

func (e ElevenLabs) post(ctx context.Context, path string, body any) ([]byte, error) {
	if e.apiKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		e.logger.Error("Speech request failed",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return nil, &UpstreamError{Provider: "elevenlabs", StatusCode: resp.StatusCode, Body: string(b)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading audio: %w", err)
	}
	return audio, nil
}
