package services_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/MegaGrindStone/wonder/internal/services"
)

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks []string
	err    error
}

type streamResult struct {
	deltas      []string
	done        int
	parseErrors []error
	err         error
}

const sampleStream = ": keep-alive\n" +
	"\n" +
	"event: message\n" +
	"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\r\n" +
	"id: 3\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n" +
	"data:{\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n" +
	"data: [DONE]\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"after done\"}}]}\n"

func TestReadChatStreamSplitInvariance(t *testing.T) {
	want := []string{"Hel", "lo", " there"}

	for i := 0; i <= len(sampleStream); i++ {
		r := &chunkReader{chunks: []string{sampleStream[:i], sampleStream[i:]}}
		res := readStream(context.Background(), r)
		if res.err != nil {
			t.Fatalf("split at %d: error = %v", i, res.err)
		}
		if !slices.Equal(res.deltas, want) {
			t.Errorf("split at %d: deltas = %q, want %q", i, res.deltas, want)
		}
		if res.done != 1 {
			t.Errorf("split at %d: onDone called %d times, want 1", i, res.done)
		}
	}

	res := readStream(context.Background(), iotest.OneByteReader(strings.NewReader(sampleStream)))
	if !slices.Equal(res.deltas, want) || res.done != 1 {
		t.Errorf("byte by byte: deltas = %q, done = %d", res.deltas, res.done)
	}
	if len(res.parseErrors) != 0 {
		t.Errorf("byte by byte: parse errors = %v, want none", res.parseErrors)
	}
}

func TestReadChatStream(t *testing.T) {
	tests := []struct {
		name            string
		chunks          []string
		wantDeltas      []string
		wantParseErrors int
	}{
		{
			name: "split data marker",
			chunks: []string{
				"da",
				"ta: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n",
				"data: [DONE]\n",
			},
			wantDeltas: []string{"Hi"},
		},
		{
			name: "sentinel stops in the same chunk",
			chunks: []string{
				"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\ndata: [DONE]\n" +
					"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"c\"}}]}\n",
			},
			wantDeltas: []string{"a"},
		},
		{
			name:       "sentinel with surrounding whitespace",
			chunks:     []string{"data:  [DONE]  \n", "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n"},
			wantDeltas: nil,
		},
		{
			name:       "no sentinel and unterminated last line",
			chunks:     []string{"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n", "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}"},
			wantDeltas: []string{"a", "b"},
		},
		{
			name:       "comments and blank lines only",
			chunks:     []string{": ping\n\n:\n", "\r\n"},
			wantDeltas: nil,
		},
		{
			name: "json of another shape",
			chunks: []string{
				"data: 42\n",
				"data: {\"choices\":\"x\"}\n",
				"data: {\"choices\":[]}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n",
			},
			wantDeltas: []string{"ok"},
		},
		{
			name: "malformed line dropped after bounded retries",
			chunks: []string{
				"data: {\"choices\":[{\"delta\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"c\"}}]}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"d\"}}]}\n",
			},
			wantDeltas:      []string{"a", "b", "c", "d"},
			wantParseErrors: 1,
		},
		{
			name: "malformed line dropped at end of input",
			chunks: []string{
				"data: {not json}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n",
			},
			wantDeltas:      []string{"a"},
			wantParseErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := readStream(context.Background(), &chunkReader{chunks: tt.chunks})
			if res.err != nil {
				t.Fatalf("ReadChatStream() error = %v", res.err)
			}
			if !slices.Equal(res.deltas, tt.wantDeltas) {
				t.Errorf("deltas = %q, want %q", res.deltas, tt.wantDeltas)
			}
			if res.done != 1 {
				t.Errorf("onDone called %d times, want 1", res.done)
			}
			if len(res.parseErrors) != tt.wantParseErrors {
				t.Fatalf("parse errors = %v, want %d", res.parseErrors, tt.wantParseErrors)
			}
			for _, err := range res.parseErrors {
				var perr *services.ParseError
				if !errors.As(err, &perr) {
					t.Errorf("parse error %v is not a *ParseError", err)
				}
			}
		})
	}
}

func TestReadChatStreamReadError(t *testing.T) {
	r := &chunkReader{
		chunks: []string{"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n"},
		err:    errors.New("connection reset by peer"),
	}
	res := readStream(context.Background(), r)

	var terr *services.TransportError
	if !errors.As(res.err, &terr) {
		t.Fatalf("error = %v, want *TransportError", res.err)
	}
	if res.done != 0 {
		t.Errorf("onDone called %d times, want 0", res.done)
	}
	if !slices.Equal(res.deltas, []string{"a"}) {
		t.Errorf("deltas = %q, want [a]", res.deltas)
	}
}

func TestReadChatStreamCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &chunkReader{chunks: []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n",
	}}

	var (
		deltas []string
		done   int
	)
	err := services.ReadChatStream(ctx, r,
		func(s string) {
			deltas = append(deltas, s)
			cancel()
		},
		func() { done++ },
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if done != 0 {
		t.Errorf("onDone called %d times, want 0", done)
	}
	if !slices.Equal(deltas, []string{"a"}) {
		t.Errorf("deltas = %q, want [a]", deltas)
	}
}

func readStream(ctx context.Context, r io.Reader) streamResult {
	var res streamResult
	res.err = services.ReadChatStream(ctx, r,
		func(s string) { res.deltas = append(res.deltas, s) },
		func() { res.done++ },
		services.WithParseErrorHandler(func(err error) { res.parseErrors = append(res.parseErrors, err) }),
	)
	return res
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.chunks) > 0 && c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	return n, nil
}
