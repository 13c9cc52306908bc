package handlers

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/MegaGrindStone/wonder/internal/services"
)

// LLM represents a large language model that streams chat replies and answers one-shot completions.
type LLM interface {
	Chat(ctx context.Context, systemPrompt string, messages []models.Message) iter.Seq2[string, error]
	Complete(ctx context.Context, systemPrompt string, messages []models.Message) (string, error)
}

// ImageGenerator paints an image from a prompt and returns it as a URL, usually a data URI.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// SpeechSynthesizer produces spoken audio and short sound effects.
type SpeechSynthesizer interface {
	TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error)
	SoundEffect(ctx context.Context, prompt string) ([]byte, error)
}

// Prompts are the system prompts of the functions. Empty fields take the defaults.
type Prompts struct {
	System  string
	Summary string
	Visual  string
}

// Main serves the Wonder functions: the companion chat, the session summary, speech, sound effects
// and the generated visuals. Every function lives under FunctionsPrefix.
type Main struct {
	llm    LLM
	images ImageGenerator
	speech SpeechSynthesizer

	prompts Prompts
	apiKeys map[string]struct{}

	metrics *metrics

	logger *slog.Logger
}

// FunctionsPrefix is the path every function is served under.
const FunctionsPrefix = "/functions/v1/"

const (
	errLoggerKey = "err"

	defaultMode = "reflection"
)

// Default prompts. They only set the tone; deployments are expected to provide their own.
const (
	DefaultSystemPrompt = "You are Wonder, a calm companion for reflection. " +
		"Speak in one or two short sentences, ask more than you tell, and leave room for silence."

	DefaultSummaryPrompt = "Summarize the session for the human in three short, warm sentences. " +
		`Respond in exactly this JSON format: {"arrived":"...","leaving":"...","reflection":"..."}`

	DefaultVisualPrompt = "Translate the emotional tone of the conversation into an abstract, painterly " +
		"image prompt (under 100 words, 16:9 landscape) and a soundscape prompt for a short ambient " +
		"sound (under 20 words). Respond in exactly this JSON format, without code fences: " +
		`{"imagePrompt":"...","soundscapePrompt":"..."}`
)

// NewMain creates a new Main. images and speech may be nil, in which case their functions answer
// with an error. An empty apiKeys disables bearer authentication.
func NewMain(
	llm LLM,
	images ImageGenerator,
	speech SpeechSynthesizer,
	prompts Prompts,
	apiKeys []string,
	logger *slog.Logger,
) Main {
	if prompts.System == "" {
		prompts.System = DefaultSystemPrompt
	}
	if prompts.Summary == "" {
		prompts.Summary = DefaultSummaryPrompt
	}
	if prompts.Visual == "" {
		prompts.Visual = DefaultVisualPrompt
	}

	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	return Main{
		llm:     llm,
		images:  images,
		speech:  speech,
		prompts: prompts,
		apiKeys: keys,
		metrics: newMetrics(),
		logger:  logger.With(slog.String("module", "main")),
	}
}

// Handler returns the HTTP handler of every function plus the index at "/" and the Prometheus
// metrics at "/metrics".
func (m Main) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(FunctionsPrefix+services.FunctionChat, m.function(services.FunctionChat, m.HandleChat))
	mux.Handle(FunctionsPrefix+services.FunctionTTS, m.function(services.FunctionTTS, m.HandleTTS))
	mux.Handle(FunctionsPrefix+services.FunctionSFX, m.function(services.FunctionSFX, m.HandleSFX))
	mux.Handle(FunctionsPrefix+services.FunctionVisuals, m.function(services.FunctionVisuals, m.HandleVisuals))
	mux.Handle(FunctionsPrefix+services.FunctionImage, m.function(services.FunctionImage, m.HandleImage))
	mux.Handle("/metrics", m.metrics.handler())
	mux.HandleFunc("/", m.HandleHome)
	return mux
}

// function wraps a function handler with CORS, preflight, method, authentication and metrics
// handling.
func (m Main) function(name string, h http.HandlerFunc) http.Handler {
	return m.instrument(name, withCORS(m.authenticate(onlyPost(h))))
}
