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
	"regexp"
	"strings"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/google/uuid"
)

const errLoggerKey = "err"

// Function names under the functions base URL.
const (
	FunctionChat    = "wonder-chat"
	FunctionTTS     = "wonder-tts"
	FunctionSFX     = "wonder-sfx"
	FunctionVisuals = "wonder-visuals"
	FunctionImage   = "wonder-image"
)

// ModeReflection is the default conversation mode, also used for summaries.
const ModeReflection = "reflection"

// Wonder is the client of the Wonder functions: the streaming chat, the session summary, speech
// synthesis and the visual generators. Every request carries the configured bearer credential.
type Wonder struct {
	baseURL string
	apiKey  string

	client *http.Client

	logger *slog.Logger
}

type chatRequest struct {
	Messages        []models.Message `json:"messages"`
	Mode            string           `json:"mode"`
	GenerateSummary bool             `json:"generateSummary,omitempty"`
}

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId,omitempty"`
}

type visualsRequest struct {
	Messages []models.Message `json:"messages"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	ImageURL *string `json:"imageUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*?\}`)

// NewWonder creates a Wonder client for the functions served under baseURL, for example
// "https://example.supabase.co/functions/v1". A nil client uses http.DefaultClient.
func NewWonder(baseURL, apiKey string, client *http.Client, logger *slog.Logger) Wonder {
	if client == nil {
		client = http.DefaultClient
	}
	return Wonder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		logger:  logger.With(slog.String("module", "wonder")),
	}
}

// StreamChat sends the conversation to the chat function and feeds the streamed reply to onDelta.
// onDone is called once the stream has been fully consumed. Failures before streaming starts are
// returned as *TransportError, carrying the function's error message when it sent one.
func (w Wonder) StreamChat(
	ctx context.Context,
	messages []models.Message,
	mode string,
	onDelta func(string),
	onDone func(),
) error {
	if mode == "" {
		mode = ModeReflection
	}
	resp, err := w.post(ctx, "Chat", FunctionChat, chatRequest{Messages: messages, Mode: mode})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.Body == http.NoBody || resp.ContentLength == 0 {
		return &TransportError{Call: "Chat", StatusCode: resp.StatusCode, Err: ErrEmptyBody}
	}

	return ReadChatStream(ctx, resp.Body, onDelta, onDone,
		WithStreamLogger(w.logger),
		WithParseErrorHandler(func(err error) {
			w.logger.Debug("Chat stream line dropped", slog.String(errLoggerKey, err.Error()))
		}),
	)
}

// GenerateSummary asks the chat function for the end-of-session reflection. The reply is plain text
// that contains one JSON object, possibly wrapped in prose or markdown fences.
func (w Wonder) GenerateSummary(ctx context.Context, messages []models.Message) (models.SessionSummary, error) {
	resp, err := w.post(ctx, "Summary", FunctionChat, chatRequest{
		Messages:        messages,
		Mode:            ModeReflection,
		GenerateSummary: true,
	})
	if err != nil {
		return models.SessionSummary{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.SessionSummary{}, &TransportError{Call: "Summary", Err: err}
	}

	var summary models.SessionSummary
	if err := ExtractJSON(string(body), &summary); err != nil {
		return models.SessionSummary{}, fmt.Errorf("invalid summary format: %w", err)
	}
	return summary, nil
}

// Synthesize returns the spoken audio of text. An empty voiceID leaves the choice to the function.
func (w Wonder) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return w.audio(ctx, "TTS", FunctionTTS, ttsRequest{Text: text, VoiceID: voiceID})
}

// SoundEffect returns a short ambient sound matching prompt.
func (w Wonder) SoundEffect(ctx context.Context, prompt string) ([]byte, error) {
	return w.audio(ctx, "Sound effect", FunctionSFX, ttsRequest{Text: prompt})
}

// GenerateVisual asks for an image and a soundscape prompt matching the recent conversation.
func (w Wonder) GenerateVisual(ctx context.Context, messages []models.Message) (models.Visual, error) {
	resp, err := w.post(ctx, "Visual generation", FunctionVisuals, visualsRequest{Messages: messages})
	if err != nil {
		return models.Visual{}, err
	}
	defer resp.Body.Close()

	var visual models.Visual
	if err := json.NewDecoder(resp.Body).Decode(&visual); err != nil {
		return models.Visual{}, fmt.Errorf("error decoding visual: %w", err)
	}
	return visual, nil
}

// GenerateImage returns the URL (usually a data URI) of an image painted from prompt.
func (w Wonder) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := w.post(ctx, "Image generation", FunctionImage, imageRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var res imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("error decoding image: %w", err)
	}
	if res.ImageURL == nil || *res.ImageURL == "" {
		return "", errors.New("no image generated")
	}
	return *res.ImageURL, nil
}

func (w Wonder) audio(ctx context.Context, call, function string, body any) ([]byte, error) {
	resp, err := w.post(ctx, call, function, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Call: call, Err: err}
	}
	return audio, nil
}

// post sends body to function and returns the response when its status is 2xx.
func (w Wonder) post(ctx context.Context, call, function string, body any) (*http.Response, error) {
	if w.baseURL == "" {
		return nil, &ConfigurationError{Field: "functionsURL", Err: errors.New("functions url is not configured")}
	}
	if w.apiKey == "" {
		return nil, &ConfigurationError{Field: "apiKey", Err: ErrMissingCredential}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/"+function, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("apikey", w.apiKey)
	req.Header.Set("X-Request-Id", requestID)

	w.logger.Debug("Request",
		slog.String("function", function),
		slog.String("requestID", requestID),
		slog.Int("bytes", len(jsonBody)))

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", function, ctx.Err())
		}
		return nil, &TransportError{Call: call, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, responseError(call, resp)
	}
	if resp.Body == nil {
		return nil, &TransportError{Call: call, StatusCode: resp.StatusCode, Err: ErrEmptyBody}
	}
	return resp, nil
}

func responseError(call string, resp *http.Response) error {
	te := &TransportError{Call: call, StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return te
	}
	var res errorResponse
	if err := json.Unmarshal(body, &res); err == nil && res.Error != "" {
		te.Message = res.Error
	}
	return te
}

// ExtractJSON decodes the first JSON object found in text into v. Malformed objects are repaired
// before decoding.
func ExtractJSON(text string, v any) error {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return errors.New("no json object found")
	}
	return unmarshalJSON([]byte(match), v)
}
