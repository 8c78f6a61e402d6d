package subtitles

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/forPelevin/cuestream/internal/types"
)

type Format string

const (
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatASS  Format = "ass"
	FormatJSON Format = "json"
)

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSRT, FormatVTT, FormatASS, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown subtitle format %q (want srt, vtt, ass or json)", s)
	}
}

// Render encodes cues in the given format.
func Render(f Format, cues []types.Cue) ([]byte, error) {
	switch f {
	case FormatSRT:
		return []byte(RenderSRT(cues)), nil
	case FormatVTT:
		return []byte(RenderVTT(cues)), nil
	case FormatASS:
		return []byte(RenderASS(cues)), nil
	case FormatJSON:
		if cues == nil {
			cues = []types.Cue{}
		}
		b, err := json.MarshalIndent(cues, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal cues: %w", err)
		}
		return append(b, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown subtitle format %q", f)
	}
}

func RenderSRT(cues []types.Cue) string {
	var b strings.Builder
	for i, c := range cues {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(clockTime(c.Start, ","))
		b.WriteString(" --> ")
		b.WriteString(clockTime(c.End, ","))
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(c.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

func RenderVTT(cues []types.Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues {
		b.WriteString(clockTime(c.Start, "."))
		b.WriteString(" --> ")
		b.WriteString(clockTime(c.End, "."))
		b.WriteString("\n")
		// "-->" inside a cue payload would end the cue early.
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(c.Text), "-->", "->"))
		b.WriteString("\n\n")
	}
	return b.String()
}

// clockTime formats seconds as HH:MM:SS<sep>mmm.
func clockTime(sec float64, sep string) string {
	if sec < 0 {
		sec = 0
	}
	total := int64(math.Round(sec * 1000))
	ms := total % 1000
	total /= 1000
	s := total % 60
	total /= 60
	m := total % 60
	h := total / 60
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}
