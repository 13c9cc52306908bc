package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/MegaGrindStone/wonder/internal/services"
	"github.com/spf13/cobra"
)

func newSettingsCmd(configPath func() (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the saved preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSettings(configPath, func(s *services.Settings) error {
				printSettings(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a preference: voice, auto-transcript, visuals or ambient",
		Long: "Change a preference. voice takes a voice name or ID; auto-transcript, visuals and ambient " +
			"take true or false. The full keys (wonder-voice, ...) are accepted as well.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(configPath, func(s *services.Settings) error {
				if err := applySetting(s, args[0], args[1]); err != nil {
					return err
				}
				printSettings(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
	cmd.AddCommand(set)
	return cmd
}

func withSettings(configPath func() (string, error), fn func(*services.Settings) error) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	db, err := services.NewBoltDB(filepath.Join(dir, settingsFileName))
	if err != nil {
		return err
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return fn(services.NewSettings(context.Background(), db, logger))
}

func applySetting(s *services.Settings, key, value string) error {
	switch key {
	case "voice", models.SettingVoice:
		voice, ok := models.LookupVoice(value)
		if !ok {
			return fmt.Errorf("unknown voice %q", value)
		}
		s.SetVoiceID(voice.ID)
		return nil
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: want true or false", value, key)
	}
	switch key {
	case "auto-transcript", models.SettingAutoTranscript:
		s.SetAutoTranscript(enabled)
	case "visuals", models.SettingVisuals:
		s.SetVisualsEnabled(enabled)
	case "ambient", models.SettingAmbient:
		s.SetAmbientEnabled(enabled)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func printSettings(w io.Writer, s *services.Settings) {
	voice := s.VoiceID()
	if v, ok := models.LookupVoice(voice); ok {
		voice = fmt.Sprintf("%s (%s, %s)", v.Name, v.Description, v.ID)
	}
	fmt.Fprintf(w, "voice            %s\n", voice)
	fmt.Fprintf(w, "auto-transcript  %t\n", s.AutoTranscript())
	fmt.Fprintf(w, "visuals          %t\n", s.VisualsEnabled())
	fmt.Fprintf(w, "ambient          %t\n", s.AmbientEnabled())
}
