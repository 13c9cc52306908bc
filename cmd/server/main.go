package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MegaGrindStone/wonder/internal/handlers"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	// A missing .env is fine; secrets may come from the environment or the config file.
	_ = godotenv.Load()

	var cfgFilePath string
	cmd := &cobra.Command{
		Use:           "wonder-server",
		Short:         "Serve the Wonder functions: chat, speech, sound effects and visuals",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFilePath)
		},
	}
	cmd.Flags().StringVar(&cfgFilePath, "config", "", "path to server.yaml (default <user config dir>/wonder/server.yaml)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgFilePath string) error {
	if cfgFilePath == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("error getting user config dir: %w", err)
		}
		cfgPath := filepath.Join(cfgDir, "wonder")
		if err := os.MkdirAll(cfgPath, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
		cfgFilePath = filepath.Join(cfgPath, "server.yaml")
	}

	cfg, err := loadConfig(cfgFilePath)
	if err != nil {
		return err
	}

	level, err := cfg.logLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	llm, err := cfg.LLM.llm(logger)
	if err != nil {
		return fmt.Errorf("error creating llm: %w", err)
	}
	images := cfg.Image.images(logger)
	if images == nil {
		logger.Warn("No image provider configured, visuals will carry no image")
	}
	speech := cfg.Speech.synthesizer(logger)
	if speech == nil {
		logger.Warn("No speech provider configured, wonder-tts and wonder-sfx will fail")
	}
	keys := cfg.apiKeys()
	if len(keys) == 0 {
		logger.Warn("No api keys configured, functions are served without authentication")
	}

	m := handlers.NewMain(llm, images, speech, cfg.prompts(), keys, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("Start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
	return nil
}

func loadConfig(path string) (config, error) {
	cfgFile, err := os.Open(path)
	if err != nil {
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer cfgFile.Close()

	cfg := config{}
	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}
