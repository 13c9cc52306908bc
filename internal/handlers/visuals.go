package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/MegaGrindStone/wonder/internal/services"
)

const (
	visualContextMessages = 4

	visualsErrorMessage = "An error occurred. Please try again."
)

type visualsRequest struct {
	Messages []models.Message `json:"messages"`
}

type visualsResponse struct {
	models.Visual
	Error string `json:"error,omitempty"`
}

type visualPrompts struct {
	ImagePrompt      string `json:"imagePrompt"`
	SoundscapePrompt string `json:"soundscapePrompt"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	ImageURL string `json:"imageUrl"`
}

var errImagesNotConfigured = errors.New("image provider is not configured")

// HandleVisuals answers the wonder-visuals function. The tail of the conversation is turned into an
// image prompt and a soundscape prompt, and the image is painted right away. A failed painting
// still returns the soundscape prompt with a null image.
func (m Main) HandleVisuals(w http.ResponseWriter, r *http.Request) {
	var req visualsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	prompts, err := m.visualPrompts(r, req.Messages)
	if err != nil {
		m.logger.Error("Visual prompts failed", slog.String(errLoggerKey, err.Error()))
		m.metrics.recordUpstreamError(services.FunctionVisuals, upstreamStatus(err))
		writeJSON(w, http.StatusInternalServerError, visualsResponse{Error: visualsErrorMessage})
		return
	}

	res := visualsResponse{}
	if prompts.SoundscapePrompt != "" {
		res.SoundscapePrompt = &prompts.SoundscapePrompt
	}
	if prompts.ImagePrompt == "" {
		writeJSON(w, http.StatusOK, res)
		return
	}

	image, err := m.paint(r, prompts.ImagePrompt)
	if err != nil {
		m.logger.Warn("Image generation failed", slog.String(errLoggerKey, err.Error()))
		m.metrics.recordUpstreamError(services.FunctionVisuals, upstreamStatus(err))
		writeJSON(w, http.StatusOK, res)
		return
	}
	res.ImageBase64 = &image
	writeJSON(w, http.StatusOK, res)
}

// HandleImage answers the wonder-image function with the painted image of a prompt.
func (m Main) HandleImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	image, err := m.paint(r, req.Prompt)
	if err != nil {
		m.logger.Error("Image generation failed", slog.String(errLoggerKey, err.Error()))
		m.writeUpstreamError(w, services.FunctionImage, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{ImageURL: image})
}

func (m Main) visualPrompts(r *http.Request, messages []models.Message) (visualPrompts, error) {
	var sb strings.Builder
	sb.WriteString("Analyze this conversation and generate visual + soundscape prompts:\n\n")
	for i, msg := range models.LastN(messages, visualContextMessages) {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s", msg.Role, msg.Content)
	}

	text, err := m.llm.Complete(r.Context(), m.prompts.Visual, []models.Message{
		{Role: models.RoleUser, Content: sb.String()},
	})
	if err != nil {
		return visualPrompts{}, err
	}

	var prompts visualPrompts
	if err := services.ExtractJSON(text, &prompts); err != nil {
		return visualPrompts{}, fmt.Errorf("failed to parse visual prompts: %w", err)
	}
	return prompts, nil
}

func (m Main) paint(r *http.Request, prompt string) (string, error) {
	if m.images == nil {
		return "", errImagesNotConfigured
	}
	return m.images.GenerateImage(r.Context(), prompt)
}

func upstreamStatus(err error) int {
	var uerr *services.UpstreamError
	if errors.As(err, &uerr) {
		return uerr.StatusCode
	}
	return 0
}
