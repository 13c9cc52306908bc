package services_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/MegaGrindStone/wonder/internal/services"
)

type recordedRequest struct {
	path   string
	auth   string
	apiKey string
	body   map[string]any
}

// requestRecorder keeps the last request seen per path.
type requestRecorder struct {
	mu   sync.Mutex
	reqs map[string]recordedRequest
}

func TestWonderStreamChat(t *testing.T) {
	rec := &requestRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, s := range []string{"I ", "hear ", "you."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", s)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := services.NewWonder(srv.URL, "secret", srv.Client(), slog.New(slog.DiscardHandler))

	var (
		deltas []string
		done   int
	)
	messages := []models.Message{{Role: models.RoleUser, Content: "I feel stuck"}}
	err := client.StreamChat(context.Background(), messages, "",
		func(s string) { deltas = append(deltas, s) },
		func() { done++ },
	)
	if err != nil {
		t.Fatalf("StreamChat() error = %v", err)
	}

	if !slices.Equal(deltas, []string{"I ", "hear ", "you."}) {
		t.Errorf("deltas = %q", deltas)
	}
	if done != 1 {
		t.Errorf("onDone called %d times, want 1", done)
	}
	got, ok := rec.get("/wonder-chat")
	if !ok {
		t.Fatalf("no request on /wonder-chat")
	}
	if got.auth != "Bearer secret" || got.apiKey != "secret" {
		t.Errorf("credentials = %q / %q", got.auth, got.apiKey)
	}
	if got.body["mode"] != "reflection" {
		t.Errorf("mode = %v, want reflection", got.body["mode"])
	}
	if _, ok := got.body["generateSummary"]; ok {
		t.Errorf("generateSummary sent on a chat request")
	}
}

func TestWonderErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"error":"Rate limited. Please wait a moment."}`,
			wantMessage: "Rate limited. Please wait a moment.",
		},
		{
			name:        "usage limit",
			status:      http.StatusPaymentRequired,
			body:        `{"error":"Usage limit reached."}`,
			wantMessage: "Usage limit reached.",
		},
		{
			name:        "no error field",
			status:      http.StatusInternalServerError,
			body:        `upstream exploded`,
			wantMessage: "Chat failed: 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			client := services.NewWonder(srv.URL, "secret", srv.Client(), slog.New(slog.DiscardHandler))
			done := false
			err := client.StreamChat(context.Background(), nil, "reflection", func(string) {}, func() { done = true })

			var terr *services.TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("error = %v, want *TransportError", err)
			}
			if terr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", terr.StatusCode, tt.status)
			}
			if err.Error() != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMessage)
			}
			if done {
				t.Errorf("onDone called for a failed request")
			}
		})
	}
}

func TestWonderStreamChatEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := services.NewWonder(srv.URL, "secret", srv.Client(), slog.New(slog.DiscardHandler))
	err := client.StreamChat(context.Background(), nil, "", func(string) {}, func() {})
	if !errors.Is(err, services.ErrEmptyBody) {
		t.Errorf("error = %v, want %v", err, services.ErrEmptyBody)
	}
}

func TestWonderMissingCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := services.NewWonder(srv.URL, "", srv.Client(), slog.New(slog.DiscardHandler))
	_, err := client.Synthesize(context.Background(), "hello", "")

	var cerr *services.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ConfigurationError", err)
	}
	if !errors.Is(err, services.ErrMissingCredential) {
		t.Errorf("error = %v, want %v", err, services.ErrMissingCredential)
	}
	if called {
		t.Errorf("request sent without a credential")
	}
}

func TestWonderGenerateSummary(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    models.SessionSummary
		wantErr bool
	}{
		{
			name:  "fenced",
			reply: "Here is your reflection:\n```json\n{\"arrived\":\"tired\",\"leaving\":\"lighter\",\"reflection\":\"the sky\"}\n```",
			want:  models.SessionSummary{Arrived: "tired", Leaving: "lighter", Reflection: "the sky"},
		},
		{
			name:  "trailing comma",
			reply: `{"arrived":"tired","leaving":"lighter","reflection":"the sky",}`,
			want:  models.SessionSummary{Arrived: "tired", Leaving: "lighter", Reflection: "the sky"},
		},
		{
			name:    "no object",
			reply:   "I could not summarize this session.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &requestRecorder{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rec.record(t, r)
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, tt.reply)
			}))
			defer srv.Close()

			client := services.NewWonder(srv.URL, "secret", srv.Client(), slog.New(slog.DiscardHandler))
			summary, err := client.GenerateSummary(context.Background(), []models.Message{
				{Role: models.RoleUser, Content: "hi"},
				{Role: models.RoleAssistant, Content: "hello"},
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("GenerateSummary() error = %v, wantErr %v", err, tt.wantErr)
			}
			if summary != tt.want {
				t.Errorf("GenerateSummary() = %+v, want %+v", summary, tt.want)
			}
			got, _ := rec.get("/wonder-chat")
			if got.body["generateSummary"] != true || got.body["mode"] != "reflection" {
				t.Errorf("request body = %v", got.body)
			}
		})
	}
}

func TestWonderAudioAndVisuals(t *testing.T) {
	mux := http.NewServeMux()
	rec := &requestRecorder{}
	mux.HandleFunc("/wonder-tts", func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-speech"))
	})
	mux.HandleFunc("/wonder-sfx", func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		_, _ = w.Write([]byte("ID3-rain"))
	})
	mux.HandleFunc("/wonder-visuals", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"imageBase64":null,"soundscapePrompt":"soft rain"}`)
	})
	mux.HandleFunc("/wonder-image", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"imageUrl":"data:image/png;base64,AAA"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := services.NewWonder(srv.URL+"/", "secret", srv.Client(), slog.New(slog.DiscardHandler))
	ctx := context.Background()

	speech, err := client.Synthesize(ctx, "Hello there", "pFZP5JQG7iQjIQuC4Bku")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !bytes.Equal(speech, []byte("ID3-speech")) {
		t.Errorf("Synthesize() = %q", speech)
	}
	tts, _ := rec.get("/wonder-tts")
	if tts.body["text"] != "Hello there" || tts.body["voiceId"] != "pFZP5JQG7iQjIQuC4Bku" {
		t.Errorf("tts body = %v", tts.body)
	}

	sound, err := client.SoundEffect(ctx, "rain")
	if err != nil {
		t.Fatalf("SoundEffect() error = %v", err)
	}
	sfx, _ := rec.get("/wonder-sfx")
	if string(sound) != "ID3-rain" || sfx.body["text"] != "rain" {
		t.Errorf("SoundEffect() = %q, body = %v", sound, sfx.body)
	}

	visual, err := client.GenerateVisual(ctx, nil)
	if err != nil {
		t.Fatalf("GenerateVisual() error = %v", err)
	}
	if visual.ImageBase64 != nil {
		t.Errorf("ImageBase64 = %q, want nil", *visual.ImageBase64)
	}
	if visual.SoundscapePrompt == nil || *visual.SoundscapePrompt != "soft rain" {
		t.Errorf("SoundscapePrompt = %v, want soft rain", visual.SoundscapePrompt)
	}

	image, err := client.GenerateImage(ctx, "a quiet lake")
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if image != "data:image/png;base64,AAA" {
		t.Errorf("GenerateImage() = %q", image)
	}
}

func (rr *requestRecorder) record(t *testing.T, r *http.Request) {
	t.Helper()
	req := recordedRequest{
		path:   r.URL.Path,
		auth:   r.Header.Get("Authorization"),
		apiKey: r.Header.Get("apikey"),
	}
	if err := json.NewDecoder(r.Body).Decode(&req.body); err != nil {
		t.Errorf("failed to decode request body: %v", err)
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.reqs == nil {
		rr.reqs = make(map[string]recordedRequest)
	}
	rr.reqs[req.path] = req
}

func (rr *requestRecorder) get(path string) (recordedRequest, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	req, ok := rr.reqs[path]
	return req, ok
}
