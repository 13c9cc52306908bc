package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/wonder/internal/services"
)

type speechRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

var errSpeechNotConfigured = errors.New("speech provider is not configured")

// HandleTTS answers the wonder-tts function with the spoken text as audio/mpeg.
func (m Main) HandleTTS(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if m.speech == nil {
		m.writeUpstreamError(w, services.FunctionTTS, errSpeechNotConfigured)
		return
	}

	audio, err := m.speech.TextToSpeech(r.Context(), req.Text, req.VoiceID)
	if err != nil {
		m.logger.Error("Text to speech failed", slog.String(errLoggerKey, err.Error()))
		m.writeUpstreamError(w, services.FunctionTTS, err)
		return
	}
	m.writeAudio(w, audio)
}

// HandleSFX answers the wonder-sfx function with a short ambient sound for the prompt in text.
func (m Main) HandleSFX(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if m.speech == nil {
		m.writeUpstreamError(w, services.FunctionSFX, errSpeechNotConfigured)
		return
	}

	audio, err := m.speech.SoundEffect(r.Context(), req.Text)
	if err != nil {
		m.logger.Error("Sound effect failed", slog.String(errLoggerKey, err.Error()))
		m.writeUpstreamError(w, services.FunctionSFX, err)
		return
	}
	m.writeAudio(w, audio)
}

func (m Main) writeAudio(w http.ResponseWriter, audio []byte) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		m.logger.Warn("Failed to write audio", slog.String(errLoggerKey, err.Error()))
	}
}
