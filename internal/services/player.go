package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPlayerCommand plays one audio file to the end and exits.
const DefaultPlayerCommand = "ffplay -nodisp -autoexit -loglevel quiet"

// DefaultAmbientCommand is the looping player used for ambient sound. It must be mpv, whose IPC
// socket is used to change the volume while playing.
const DefaultAmbientCommand = "mpv --no-video --really-quiet --loop=inf"

// Player plays audio by handing temporary files to external players.
type Player struct {
	command        []string
	ambientCommand []string

	logger *slog.Logger
}

// NewPlayer creates a Player. Empty commands use DefaultPlayerCommand and DefaultAmbientCommand.
func NewPlayer(command, ambientCommand string, logger *slog.Logger) Player {
	if strings.TrimSpace(command) == "" {
		command = DefaultPlayerCommand
	}
	if strings.TrimSpace(ambientCommand) == "" {
		ambientCommand = DefaultAmbientCommand
	}
	return Player{
		command:        strings.Fields(command),
		ambientCommand: strings.Fields(ambientCommand),
		logger:         logger.With(slog.String("module", "player")),
	}
}

// Play plays audio and returns when playback finished or ctx is cancelled.
func (p Player) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return errors.New("no audio to play")
	}
	path, err := writeTempAudio(audio)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	args := append(append([]string{}, p.command[1:]...), path)
	cmd := exec.CommandContext(ctx, p.command[0], args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error playing audio with %s: %w", p.command[0], err)
	}
	return nil
}

// Loop starts playing audio in a loop at the given volume (0 to 1) and returns the running track.
func (p Player) Loop(audio []byte, volume float64) (*Track, error) {
	path, err := writeTempAudio(audio)
	if err != nil {
		return nil, err
	}
	ipcPath := filepath.Join(os.TempDir(), "wonder-ambient-"+uuid.NewString()+".sock")

	args := append(append([]string{}, p.ambientCommand[1:]...),
		fmt.Sprintf("--volume=%d", volumePercent(volume)),
		"--input-ipc-server="+ipcPath,
		path,
	)
	cmd := exec.Command(p.ambientCommand[0], args...)
	if err := cmd.Start(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("error starting ambient player: %w", err)
	}

	t := &Track{
		cmd:     cmd,
		path:    path,
		ipcPath: ipcPath,
		volume:  volume,
		exited:  make(chan struct{}),
		logger:  p.logger,
	}
	go func() {
		_ = cmd.Wait()
		close(t.exited)
	}()
	return t, nil
}

// Track is a looping audio playback whose volume can be changed while it plays.
type Track struct {
	cmd     *exec.Cmd
	path    string
	ipcPath string
	exited  chan struct{}

	mu     sync.Mutex
	volume float64
	conn   net.Conn
	once   sync.Once

	logger *slog.Logger
}

// Volume returns the last volume set on the track.
func (t *Track) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

// SetVolume changes the playback volume (0 to 1).
func (t *Track) SetVolume(v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volume = v

	if t.conn == nil {
		conn, err := net.DialTimeout("unix", t.ipcPath, 200*time.Millisecond)
		if err != nil {
			// The player may not have opened its socket yet.
			return fmt.Errorf("error connecting to ambient player: %w", err)
		}
		t.conn = conn
	}

	cmd, err := json.Marshal(map[string]any{
		"command": []any{"set_property", "volume", volumePercent(v)},
	})
	if err != nil {
		return err
	}
	_, err = t.conn.Write(append(cmd, '\n'))
	return err
}

// Stop ends the playback and removes its temporary files. It is safe to call more than once.
func (t *Track) Stop() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		if t.conn != nil {
			_ = t.conn.Close()
		}
		t.mu.Unlock()

		if t.cmd.Process != nil {
			if kerr := t.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = kerr
			}
		}
		<-t.exited
		_ = os.Remove(t.path)
		_ = os.Remove(t.ipcPath)
		t.logger.Debug("Ambient track stopped")
	})
	return err
}

func writeTempAudio(audio []byte) (string, error) {
	f, err := os.CreateTemp("", "wonder-*.mp3")
	if err != nil {
		return "", fmt.Errorf("error creating audio file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("error writing audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("error closing audio file: %w", err)
	}
	return f.Name(), nil
}

func volumePercent(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return int(v*100 + 0.5)
}
