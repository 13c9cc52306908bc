package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/wonder/internal/models"
	"github.com/MegaGrindStone/wonder/internal/services"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

type chatRequest struct {
	Messages        []models.Message `json:"messages"`
	Mode            string           `json:"mode"`
	GenerateSummary bool             `json:"generateSummary"`
}

// chatChunk is one frame of the chat completion stream.
type chatChunk struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Delta chatDelta `json:"delta"`
}

type chatDelta struct {
	Content string `json:"content"`
}

const streamDone = "[DONE]"

// HandleChat answers the wonder-chat function. A regular request streams the companion's reply as
// chat completion frames over server-sent events, terminated by a [DONE] frame. With
// generateSummary set, the session summary is returned in one piece as plain text.
//
// Upstream failures detected before the first fragment are answered with a JSON error and the
// upstream status where it is meaningful to the client (429, 402). Failures after streaming
// started end the stream early.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.logger.Error("Invalid chat request", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := m.logger.With(slog.String("requestID", requestID))

	if req.GenerateSummary {
		m.summary(w, r, req, logger)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = defaultMode
	}
	systemPrompt := fmt.Sprintf("%s\n\nCurrent mode: %s", m.prompts.System, mode)

	next, stop := iter.Pull2(m.llm.Chat(r.Context(), systemPrompt, req.Messages))
	defer stop()

	// The first fragment decides between an error response and a stream.
	first, err, ok := next()
	if ok && err != nil {
		if errors.Is(err, r.Context().Err()) && r.Context().Err() != nil {
			return
		}
		logger.Error("Chat failed", slog.String(errLoggerKey, err.Error()))
		m.writeUpstreamError(w, services.FunctionChat, err)
		return
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		logger.Error("Failed to upgrade to event stream", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	fragments := 0
	for ; ok; first, err, ok = next() {
		if err != nil {
			if r.Context().Err() == nil {
				logger.Error("Chat stream failed", slog.String(errLoggerKey, err.Error()))
			}
			return
		}
		if err := sendChunk(sess, first); err != nil {
			logger.Warn("Client went away", slog.String(errLoggerKey, err.Error()))
			return
		}
		fragments++
	}

	done := &sse.Message{}
	done.AppendData(streamDone)
	if err := sess.Send(done); err != nil {
		logger.Warn("Failed to send end of stream", slog.String(errLoggerKey, err.Error()))
		return
	}
	if err := sess.Flush(); err != nil {
		logger.Warn("Failed to flush end of stream", slog.String(errLoggerKey, err.Error()))
		return
	}

	logger.Debug("Chat streamed",
		slog.String("mode", mode),
		slog.Int("messages", len(req.Messages)),
		slog.Int("fragments", fragments))
}

func (m Main) summary(w http.ResponseWriter, r *http.Request, req chatRequest, logger *slog.Logger) {
	text, err := m.llm.Complete(r.Context(), m.prompts.Summary, req.Messages)
	if err != nil {
		logger.Error("Summary failed", slog.String(errLoggerKey, err.Error()))
		m.writeUpstreamError(w, services.FunctionChat, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		logger.Warn("Failed to write summary", slog.String(errLoggerKey, err.Error()))
	}
}

func sendChunk(sess *sse.Session, content string) error {
	data, err := json.Marshal(chatChunk{Choices: []chatChoice{{Delta: chatDelta{Content: content}}}})
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	msg := &sse.Message{}
	msg.AppendData(string(data))
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}
