package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cuestream/internal/domain/cues"
	"github.com/forPelevin/cuestream/internal/realtime"
	"github.com/forPelevin/cuestream/internal/types"
)

type Format string

const (
	FormatAuto  Format = "auto"
	FormatSSE   Format = "sse"
	FormatJSONL Format = "jsonl"
	FormatRaw   Format = "raw"
)

const defaultChunkSize = 64

// Options tune how a recorded response is replayed.
type Options struct {
	Format Format
	// ChunkSize is the rune count of each increment in raw mode.
	ChunkSize int
	// Delay is slept between chunks to mimic a live stream.
	Delay  time.Duration
	Logger *zerolog.Logger
}

// Source replays a recorded model response from a file, or stdin for "-".
type Source struct {
	path string
	opts Options
	log  zerolog.Logger
}

func New(path string, opts Options) *Source {
	if opts.Format == "" {
		opts.Format = FormatAuto
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Source{path: path, opts: opts, log: log.With().Str("component", "replay").Logger()}
}

// UpstreamError is an error event recorded in the stream itself.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string { return "upstream error: " + e.Message }

func (s *Source) Stream(ctx context.Context, yield func(realtime.Chunk) error) error {
	data, err := s.read()
	if err != nil {
		return err
	}
	format := s.opts.Format
	if format == FormatAuto {
		format = Detect(data)
	}
	s.log.Debug().Str("path", s.path).Str("format", string(format)).Int("bytes", len(data)).Msg("replaying")

	emit := func(c realtime.Chunk) error {
		if err := yield(c); err != nil {
			return err
		}
		return s.sleep(ctx)
	}

	switch format {
	case FormatSSE:
		return streamSSE(ctx, data, emit)
	case FormatJSONL:
		return streamJSONL(ctx, data, emit)
	case FormatRaw:
		return streamRaw(ctx, string(data), s.opts.ChunkSize, emit)
	default:
		return fmt.Errorf("replay: unknown format %q", format)
	}
}

func (s *Source) read() ([]byte, error) {
	if s.path == "-" {
		return io.ReadAll(os.Stdin)
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return b, nil
}

func (s *Source) sleep(ctx context.Context) error {
	if s.opts.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Detect guesses the recording format: server-sent events when any line is a
// data field, JSON lines when the first line is an object with a known key,
// raw text otherwise.
func Detect(data []byte) Format {
	first := ""
	sc := newScanner(data)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			return FormatSSE
		}
		if first == "" {
			first = line
		}
	}
	if strings.HasPrefix(first, "{") {
		var probe map[string]json.RawMessage
		if json.Unmarshal([]byte(first), &probe) == nil {
			for _, k := range []string{"text", "delta", "accumulated", "subtitles", "error"} {
				if _, ok := probe[k]; ok {
					return FormatJSONL
				}
			}
		}
	}
	return FormatRaw
}

func newScanner(data []byte) *bufio.Scanner {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return sc
}

func streamRaw(ctx context.Context, text string, size int, emit func(realtime.Chunk) error) error {
	r := []rune(text)
	if len(r) == 0 {
		return nil
	}
	for end := size; ; end += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		if end > len(r) {
			end = len(r)
		}
		if err := emit(realtime.TextChunk{Text: string(r[:end])}); err != nil {
			return err
		}
		if end == len(r) {
			return nil
		}
	}
}

// streamSSE decodes a recorded generate-content or chat-completions event
// stream. Each data event carries a text delta; "[DONE]" ends the stream.
func streamSSE(ctx context.Context, data []byte, emit func(realtime.Chunk) error) error {
	var acc strings.Builder
	sc := newScanner(data)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return nil
		}
		delta, err := decodeEvent(payload)
		if err != nil {
			return err
		}
		if delta == "" {
			continue
		}
		acc.WriteString(delta)
		if err := emit(realtime.TextChunk{Text: acc.String()}); err != nil {
			return err
		}
	}
	return sc.Err()
}

type sseEvent struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Choices []struct {
		Delta struct {
			Content any `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

func decodeEvent(payload string) (string, error) {
	var ev sseEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return "", fmt.Errorf("replay: decode event %q: %w", cues.Truncate(payload, 80), err)
	}
	if len(ev.Error) > 0 && string(ev.Error) != "null" {
		return "", upstreamError(ev.Error)
	}
	var b strings.Builder
	for _, c := range ev.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	for _, c := range ev.Choices {
		b.WriteString(contentText(c.Delta.Content))
	}
	return b.String(), nil
}

type jsonlEvent struct {
	Text        *string         `json:"text"`
	Delta       *string         `json:"delta"`
	Accumulated *string         `json:"accumulated"`
	Subtitles   []types.Cue     `json:"subtitles"`
	Error       json.RawMessage `json:"error"`
}

// streamJSONL replays one event per line. "text" and "delta" append,
// "accumulated" replaces the text and "subtitles" carries cues an upstream
// aggregator already parsed.
func streamJSONL(ctx context.Context, data []byte, emit func(realtime.Chunk) error) error {
	var acc string
	sc := newScanner(data)
	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev jsonlEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return fmt.Errorf("replay: line %d: %w", n, err)
		}
		if len(ev.Error) > 0 && string(ev.Error) != "null" {
			return upstreamError(ev.Error)
		}
		switch {
		case ev.Accumulated != nil:
			acc = *ev.Accumulated
		case ev.Text != nil:
			acc += *ev.Text
		case ev.Delta != nil:
			acc += *ev.Delta
		}
		var chunk realtime.Chunk = realtime.TextChunk{Text: acc}
		if len(ev.Subtitles) > 0 {
			chunk = realtime.ParsedChunk{Text: acc, Cues: ev.Subtitles}
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return sc.Err()
}

// contentText flattens a message content value. Some providers send a plain
// string, others an array of {type,text} parts.
func contentText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		return b.String()
	default:
		return ""
	}
}

func upstreamError(raw json.RawMessage) error {
	var msg string
	if json.Unmarshal(raw, &msg) != nil {
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
			msg = obj.Message
		} else {
			msg = string(raw)
		}
	}
	if msg == "" {
		return errors.New("upstream error")
	}
	return &UpstreamError{Message: redactSecrets(msg)}
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

// redactSecrets masks credentials that providers sometimes echo back in
// error messages.
func redactSecrets(s string) string {
	out := bearerTokenRE.ReplaceAllString(s, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
