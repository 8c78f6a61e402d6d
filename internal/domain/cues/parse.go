package cues

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/forPelevin/cuestream/internal/types"
)

// ErrMiss is matched by every error Parse returns. A miss is routine while a
// response is still streaming in.
var ErrMiss = errors.New("no cues")

// MissError describes why a parse attempt produced nothing.
type MissError struct {
	Reason string
}

func (e *MissError) Error() string { return "cues: " + e.Reason }

func (e *MissError) Is(target error) bool { return target == ErrMiss }

func miss(format string, args ...any) error {
	return &MissError{Reason: fmt.Sprintf(format, args...)}
}

// Parse extracts subtitle cues from a model response that may still be
// arriving. Conversational text around the payload is skipped, a truncated
// trailing entry is dropped and invalid entries are skipped one by one.
// Cues come back in source order.
func Parse(raw string) ([]types.Cue, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return nil, miss("empty content")
	}
	candidates := []string{t}
	if body, ok := fencedBody(t); ok {
		candidates = []string{body, t}
	}
	for _, c := range candidates {
		if out := parseJSON(c); len(out) > 0 {
			return out, nil
		}
		if out := parseLines(c); len(out) > 0 {
			return out, nil
		}
	}
	return nil, miss("no cue entries in %q", Truncate(t, 80))
}

// DecodeArray decodes a serialized cue array the caller already knows is one,
// e.g. the pre-filtered cues of an early stop.
func DecodeArray(serialized string) ([]types.Cue, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(serialized)), &raw); err != nil {
		return nil, fmt.Errorf("decode cue array: %w", err)
	}
	out := make([]types.Cue, 0, len(raw))
	for _, r := range raw {
		if c, ok := decodeEntry(r); ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, miss("cue array has no valid entries")
	}
	return out, nil
}

// fencedBody returns the content of the first code fence that opens a line
// and is followed by a newline. An unclosed fence runs to the end of t.
func fencedBody(t string) (string, bool) {
	for off := 0; off < len(t); {
		i := strings.Index(t[off:], "```")
		if i < 0 {
			return "", false
		}
		start := off + i
		off = start + 3
		if start > 0 && t[start-1] != '\n' {
			continue
		}
		rest := t[start+3:]
		// The opening line may carry a language tag.
		j := strings.IndexByte(rest, '\n')
		if j < 0 {
			return "", false
		}
		rest = rest[j+1:]
		if k := strings.Index(rest, "```"); k >= 0 {
			rest = rest[:k]
		}
		body := strings.TrimSpace(rest)
		return body, body != ""
	}
	return "", false
}

// parseJSON tries every '[' that opens an array of objects, in order, and
// returns the first one that yields valid cues.
func parseJSON(t string) []types.Cue {
	for off := 0; off < len(t); {
		i := strings.IndexByte(t[off:], '[')
		if i < 0 {
			return nil
		}
		start := off + i
		off = start + 1
		if !opensObjectArray(t[start+1:]) {
			continue
		}
		elems, _ := scanElements(t[start:])
		if out := decodeEntries(elems); len(out) > 0 {
			return out
		}
	}
	return nil
}

func opensObjectArray(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	return strings.HasPrefix(s, "{")
}

// scanElements walks a JSON array starting at s[0] == '[' and returns every
// complete top-level object element. closed is false when the array was cut
// off before its closing bracket.
func scanElements(s string) (elems []string, closed bool) {
	depth := 0
	inStr, esc := false, false
	elemStart := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[', '{':
			depth++
			if depth == 2 && c == '{' {
				elemStart = i
			}
		case ']', '}':
			depth--
			if depth == 1 && c == '}' && elemStart >= 0 {
				elems = append(elems, s[elemStart:i+1])
				elemStart = -1
			}
			if depth == 0 {
				return elems, true
			}
		}
	}
	return elems, false
}

func decodeEntries(elems []string) []types.Cue {
	var out []types.Cue
	for _, e := range elems {
		if c, ok := decodeEntry([]byte(e)); ok {
			out = append(out, c)
		}
	}
	return out
}

var (
	startKeys = []string{"start", "starttime", "begin", "from"}
	endKeys   = []string{"end", "endtime", "stop", "to"}
	textKeys  = []string{"text", "content", "subtitle", "line", "caption"}
)

func decodeEntry(b []byte) (types.Cue, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return types.Cue{}, false
	}
	norm := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		norm[normalizeKey(k)] = v
	}

	start, ok := timeField(norm, startKeys)
	if !ok {
		return types.Cue{}, false
	}
	end, ok := timeField(norm, endKeys)
	if !ok {
		return types.Cue{}, false
	}
	text, ok := textField(norm, textKeys)
	if !ok {
		return types.Cue{}, false
	}
	c := types.Cue{Start: start, End: end, Text: text}
	return c, c.Valid()
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer("_", "", "-", "").Replace(k)
}

func timeField(fields map[string]json.RawMessage, keys []string) (float64, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, n >= 0
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			v, err := ParseTimestamp(s)
			return v, err == nil
		}
		return 0, false
	}
	return 0, false
}

func textField(fields map[string]json.RawMessage, keys []string) (string, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	return "", false
}

// Truncate shortens s to at most n runes for log previews.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
