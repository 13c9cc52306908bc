package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type config struct {
	FunctionsURL  string `yaml:"functionsURL"`
	APIKey        string `yaml:"apiKey"`
	Mode          string `yaml:"mode"`
	LogLevel      string `yaml:"logLevel"`
	Player        string `yaml:"player"`
	AmbientPlayer string `yaml:"ambientPlayer"`
}

const (
	configFileName   = "client.yaml"
	settingsFileName = "settings.db"
	logFileName      = "wonder.log"
)

func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, "wonder", configFileName), nil
}

// loadConfig reads the client configuration. A missing file is not an error, the environment may
// carry everything needed.
func loadConfig(path string) (config, error) {
	cfg := config{}

	cfgFile, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer cfgFile.Close()
		if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if cfg.FunctionsURL == "" {
		cfg.FunctionsURL = os.Getenv("WONDER_FUNCTIONS_URL")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("WONDER_API_KEY")
	}
	return cfg, nil
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
