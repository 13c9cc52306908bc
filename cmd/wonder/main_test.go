package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSettingsCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), configFileName)

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run("settings")
	if err != nil {
		t.Fatalf("settings error = %v", err)
	}
	for _, want := range []string{"Sarah", "auto-transcript  true", "visuals          true", "ambient          true"} {
		if !strings.Contains(out, want) {
			t.Errorf("settings output = %q, want to contain %q", out, want)
		}
	}

	if _, err := run("settings", "set", "voice", "lily"); err != nil {
		t.Fatalf("settings set voice error = %v", err)
	}
	if _, err := run("settings", "set", "wonder-ambient", "false"); err != nil {
		t.Fatalf("settings set ambient error = %v", err)
	}

	// A new process sees the saved values.
	out, err = run("settings")
	if err != nil {
		t.Fatalf("settings error = %v", err)
	}
	if !strings.Contains(out, "Lily") || !strings.Contains(out, "ambient          false") {
		t.Errorf("settings output = %q, want Lily and ambient off", out)
	}

	tests := []struct {
		name string
		args []string
	}{
		{name: "Unknown voice", args: []string{"settings", "set", "voice", "nobody"}},
		{name: "Unknown key", args: []string{"settings", "set", "volume", "true"}},
		{name: "Not a bool", args: []string{"settings", "set", "visuals", "sometimes"}},
		{name: "Missing value", args: []string{"settings", "set", "visuals"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(tt.args...); err == nil {
				t.Errorf("%v error = nil", tt.args)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WONDER_API_KEY", "env-key")
	t.Setenv("WONDER_FUNCTIONS_URL", "http://env.example")

	cfg, err := loadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig() without a file error = %v", err)
	}
	if cfg.APIKey != "env-key" || cfg.FunctionsURL != "http://env.example" {
		t.Errorf("loadConfig() = %+v, want environment fallbacks", cfg)
	}

	path := filepath.Join(dir, configFileName)
	yaml := "functionsURL: http://localhost:8080/functions/v1\napiKey: file-key\nmode: partnership\nplayer: mpv\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.APIKey != "file-key" || cfg.FunctionsURL != "http://localhost:8080/functions/v1" ||
		cfg.Mode != "partnership" || cfg.Player != "mpv" {
		t.Errorf("loadConfig() = %+v", cfg)
	}

	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err != nil {
		t.Errorf("loadConfig() with an empty file error = %v", err)
	}
}

func TestSessionRequiresFunctionsURL(t *testing.T) {
	t.Setenv("WONDER_FUNCTIONS_URL", "")
	err := runSession(t.Context(), filepath.Join(t.TempDir(), configFileName), "")
	if err == nil || !strings.Contains(err.Error(), "functionsURL") {
		t.Errorf("runSession() error = %v, want functionsURL error", err)
	}
}
