package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MegaGrindStone/wonder/internal/handlers"
	"github.com/MegaGrindStone/wonder/internal/services"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	llm(logger *slog.Logger) (handlers.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port          string       `yaml:"port"`
	LogLevel      string       `yaml:"logLevel"`
	APIKeys       []string     `yaml:"apiKeys"`
	SystemPrompt  string       `yaml:"systemPrompt"`
	SummaryPrompt string       `yaml:"summaryPrompt"`
	VisualPrompt  string       `yaml:"visualPrompt"`
	LLM           llmConfig    `yaml:"llm"`
	Image         imageConfig  `yaml:"image"`
	Speech        speechConfig `yaml:"speech"`
}

type openaiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string                 `yaml:"apiKey"`
	BaseURL       string                 `yaml:"baseURL"`
	Parameters    services.LLMParameters `yaml:"parameters"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type imageConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
	Size    string `yaml:"size"`
}

type speechConfig struct {
	APIKey       string `yaml:"apiKey"`
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	DefaultVoice string `yaml:"defaultVoice"`
}

const defaultPort = "8080"

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port          string         `yaml:"port"`
		LogLevel      string         `yaml:"logLevel"`
		APIKeys       []string       `yaml:"apiKeys"`
		SystemPrompt  string         `yaml:"systemPrompt"`
		SummaryPrompt string         `yaml:"summaryPrompt"`
		VisualPrompt  string         `yaml:"visualPrompt"`
		LLM           map[string]any `yaml:"llm"`
		Image         imageConfig    `yaml:"image"`
		Speech        speechConfig   `yaml:"speech"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "openai":
		llm = &openaiConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	if c.Port == "" {
		c.Port = defaultPort
	}
	c.LogLevel = rawConfig.LogLevel
	c.APIKeys = rawConfig.APIKeys
	c.SystemPrompt = rawConfig.SystemPrompt
	c.SummaryPrompt = rawConfig.SummaryPrompt
	c.VisualPrompt = rawConfig.VisualPrompt
	c.LLM = llm
	c.Image = rawConfig.Image
	c.Speech = rawConfig.Speech

	return nil
}

func (c config) prompts() handlers.Prompts {
	return handlers.Prompts{
		System:  c.SystemPrompt,
		Summary: c.SummaryPrompt,
		Visual:  c.VisualPrompt,
	}
}

// apiKeys returns the accepted bearer tokens, including WONDER_API_KEY when set.
func (c config) apiKeys() []string {
	keys := c.APIKeys
	if k := os.Getenv("WONDER_API_KEY"); k != "" {
		keys = append(keys, k)
	}
	return keys
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (o openaiConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, errors.New("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.Parameters, logger), nil
}

func (o ollamaConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, errors.New("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	ollama, err := services.NewOllama(host, o.Model, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return ollama, nil
}

func (o openRouterConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, errors.New("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("openrouter api key is required")
	}
	return services.NewOpenRouter(apiKey, o.Endpoint, o.Model, logger), nil
}

func (a anthropicConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if a.Model == "" {
		return nil, errors.New("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, errors.New("maxTokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, a.Model, a.MaxTokens, logger), nil
}

// images returns the image generator, or nil when no OpenAI compatible key is available.
func (i imageConfig) images(logger *slog.Logger) handlers.ImageGenerator {
	apiKey := i.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return services.NewOpenAI(apiKey, i.BaseURL, "", services.LLMParameters{}, logger).
		WithImageModel(i.Model, i.Size)
}

// synthesizer returns the speech provider, or nil when no ElevenLabs key is available.
func (s speechConfig) synthesizer(logger *slog.Logger) handlers.SpeechSynthesizer {
	apiKey := s.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return services.NewElevenLabs(apiKey, s.Endpoint, s.Model, s.DefaultVoice, logger)
}
