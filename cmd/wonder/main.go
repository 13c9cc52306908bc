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

	"github.com/MegaGrindStone/wonder/internal/services"
	"github.com/MegaGrindStone/wonder/internal/session"
	"github.com/MegaGrindStone/wonder/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFilePath string

	root := &cobra.Command{
		Use:           "wonder",
		Short:         "A calm voice companion for reflection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFilePath, "config", "",
		"path to client.yaml (default <user config dir>/wonder/client.yaml); settings.db and wonder.log live next to it")

	configPath := func() (string, error) {
		if cfgFilePath != "" {
			return cfgFilePath, nil
		}
		return defaultConfigPath()
	}

	root.AddCommand(newSessionCmd(configPath), newSettingsCmd(configPath))
	return root
}

func newSessionCmd(configPath func() (string, error)) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), path, mode)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "conversation mode, e.g. reflection or partnership (default from config)")
	return cmd
}

func runSession(ctx context.Context, cfgPath, mode string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if cfg.FunctionsURL == "" {
		return errors.New("functionsURL is not configured: set it in client.yaml or WONDER_FUNCTIONS_URL")
	}
	if mode == "" {
		mode = cfg.Mode
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	level, err := cfg.logLevel()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))

	db, err := services.NewBoltDB(filepath.Join(dir, settingsFileName))
	if err != nil {
		return err
	}
	defer db.Close()

	settings := services.NewSettings(ctx, db, logger)
	wonder := services.NewWonder(cfg.FunctionsURL, cfg.APIKey, &http.Client{}, logger)
	player := services.NewPlayer(cfg.Player, cfg.AmbientPlayer, logger)
	voice := services.NewVoice(wonder, player, logger)

	bridge := tui.NewBridge()
	ambience := session.NewAmbience(wonder, loopPlayer{player: player}, settings, bridge, logger)
	ctrl := session.NewController(wonder, voice, ambience, settings, bridge, session.Config{Mode: mode}, logger)

	logger.Info("Session starting", slog.String("sessionID", ctrl.ID()), slog.String("mode", ctrl.Mode()))

	model := tui.NewModel(ctx, ctrl, ambience, bridge, settings.AutoTranscript())
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	// Callbacks fired during teardown must not wait for the finished program.
	bridge.Close()
	ctrl.Close()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running session: %w", err)
	}
	return nil
}

// loopPlayer adapts services.Player to the looping playback the ambience needs.
type loopPlayer struct {
	player services.Player
}

func (l loopPlayer) Loop(audio []byte, volume float64) (session.Track, error) {
	track, err := l.player.Loop(audio, volume)
	if err != nil {
		return nil, err
	}
	return track, nil
}
