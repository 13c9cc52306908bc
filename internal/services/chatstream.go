package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	chatStreamChunkSize = 4096
	// maxRebufferAttempts bounds how many times the same malformed line is pushed back while
	// waiting for more bytes before it is dropped.
	maxRebufferAttempts = 3

	sseDataPrefix = "data: "
	sseDone       = "[DONE]"
)

type streamConfig struct {
	onParseError func(error)
	logger       *slog.Logger
}

// StreamOption configures ReadChatStream.
type StreamOption func(*streamConfig)

// WithParseErrorHandler registers fn to be called with a *ParseError for every line that is dropped
// because its payload never became valid JSON.
func WithParseErrorHandler(fn func(error)) StreamOption {
	return func(c *streamConfig) {
		c.onParseError = fn
	}
}

// WithStreamLogger sets the logger used for dropped lines.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(c *streamConfig) {
		c.logger = logger
	}
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type lineResult int

const (
	lineConsumed lineResult = iota
	lineMalformed
	lineDone
)

// chatStreamReader holds the buffer of one stream. It is never reused across streams.
type chatStreamReader struct {
	buf     []byte
	stalls  int
	done    bool
	onDelta func(string)
	cfg     streamConfig
}

// ReadChatStream consumes a chat-completion event stream from body. Every non-empty
// choices[0].delta.content fragment is passed to onDelta in arrival order, and onDone is called
// exactly once when the input ends, with or without a [DONE] sentinel.
//
// Only complete lines are interpreted; a line split across two reads waits for its terminator.
// When a complete line carries malformed JSON it is kept at the head of the buffer until more bytes
// arrive, at most maxRebufferAttempts times, after which it is dropped and reported as a
// *ParseError through WithParseErrorHandler.
//
// A read failure returns a *TransportError and a cancelled ctx returns an error wrapping
// context.Canceled; onDone is not called in either case.
func ReadChatStream(
	ctx context.Context,
	body io.Reader,
	onDelta func(string),
	onDone func(),
	opts ...StreamOption,
) error {
	r := chatStreamReader{
		onDelta: onDelta,
		cfg: streamConfig{
			logger: slog.New(slog.DiscardHandler),
		},
	}
	for _, opt := range opts {
		opt(&r.cfg)
	}

	chunk := make([]byte, chatStreamChunkSize)
	for !r.done {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("chat stream: %w", err)
		}

		n, err := body.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			r.consume(false)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("chat stream: %w", ctxErr)
			}
			return &TransportError{Call: "Chat", Err: err}
		}
	}

	if !r.done {
		r.flush()
	}
	r.buf = nil

	if onDone != nil {
		onDone()
	}
	return nil
}

// consume interprets every complete line in the buffer. With final set, malformed lines are
// dropped instead of waiting for bytes that will not come.
func (r *chatStreamReader) consume(final bool) {
	rest := r.buf
	for !r.done {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			break
		}
		line := rest[:idx]

		res, err := r.handleLine(line)
		if res == lineMalformed && !final {
			r.stalls++
			if r.stalls <= maxRebufferAttempts {
				break
			}
		}
		if res == lineMalformed {
			r.dropLine(line, err)
		}
		r.stalls = 0
		rest = rest[idx+1:]
	}
	r.buf = append(r.buf[:0], rest...)
}

// flush runs the final pass once the input has ended, including the trailing unterminated line.
func (r *chatStreamReader) flush() {
	if len(bytes.TrimSpace(r.buf)) == 0 {
		return
	}
	if r.buf[len(r.buf)-1] != '\n' {
		r.buf = append(r.buf, '\n')
	}
	r.consume(true)
}

func (r *chatStreamReader) handleLine(line []byte) (lineResult, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 || bytes.HasPrefix(line, []byte(":")) {
		return lineConsumed, nil
	}
	if !bytes.HasPrefix(line, []byte(sseDataPrefix)) {
		return lineConsumed, nil
	}

	payload := bytes.TrimSpace(line[len(sseDataPrefix):])
	if string(payload) == sseDone {
		r.done = true
		return lineDone, nil
	}

	var chunk chatChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return lineMalformed, err
		}
		// Valid JSON of another shape carries no delta.
		return lineConsumed, nil
	}
	if len(chunk.Choices) == 0 {
		return lineConsumed, nil
	}
	if content := chunk.Choices[0].Delta.Content; content != "" && r.onDelta != nil {
		r.onDelta(content)
	}
	return lineConsumed, nil
}

func (r *chatStreamReader) dropLine(line []byte, err error) {
	perr := &ParseError{Line: string(line), Err: err}
	r.cfg.logger.Warn("Dropping malformed stream line", slog.String(errLoggerKey, perr.Error()))
	if r.cfg.onParseError != nil {
		r.cfg.onParseError(perr)
	}
}
