package cues

import (
	"regexp"
	"strings"

	"github.com/forPelevin/cuestream/internal/types"
)

// rangeLineRE matches "[00:01.000 - 00:03.500] text", "0m1s0ms - 0m3s500ms: text"
// and SRT timing lines "00:00:01,000 --> 00:00:03,500".
var rangeLineRE = regexp.MustCompile(`^\[?\s*([0-9][0-9hms:.,]*)\s*(?:-->|-)\s*([0-9][0-9hms:.,]*)\s*\]?\s*(.*)$`)

// parseLines is the fallback for responses that use a line-based layout
// instead of a JSON array. A timing line without trailing text collects the
// following lines up to a blank line, as in SRT.
func parseLines(t string) []types.Cue {
	var (
		out     []types.Cue
		pending *types.Cue
		body    []string
	)
	flush := func() {
		if pending == nil {
			return
		}
		pending.Text = strings.TrimSpace(strings.Join(body, " "))
		if pending.Valid() {
			out = append(out, *pending)
		}
		pending, body = nil, nil
	}

	for _, line := range strings.Split(t, "\n") {
		line = strings.TrimSpace(line)
		m := rangeLineRE.FindStringSubmatch(line)
		if m == nil || !looksLikeTimestamp(m[1]) || !looksLikeTimestamp(m[2]) {
			switch {
			case line == "":
				flush()
			case pending != nil:
				body = append(body, line)
			}
			continue
		}

		flush()
		start, err := ParseTimestamp(strings.TrimRight(m[1], ":.,"))
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(strings.TrimRight(m[2], ":.,"))
		if err != nil {
			continue
		}
		c := types.Cue{Start: start, End: end}
		text := strings.TrimSpace(strings.TrimLeft(m[3], ":-–— "))
		if text == "" {
			pending = &c
			continue
		}
		c.Text = text
		if c.Valid() {
			out = append(out, c)
		}
	}
	flush()
	return out
}

// looksLikeTimestamp rejects bare numbers so prose such as "3 - 4 people"
// is not read as a timing line.
func looksLikeTimestamp(s string) bool {
	return strings.ContainsAny(s, ":hms")
}
