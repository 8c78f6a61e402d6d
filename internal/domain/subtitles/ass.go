package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/cuestream/internal/types"
)

// RenderASS renders cues as an Advanced SubStation Alpha script with a single
// bottom-centred caption style.
func RenderASS(cues []types.Cue) string {
	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range cues {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(dur(c.Start)))
		b.WriteString(",")
		b.WriteString(assTime(dur(c.End)))
		b.WriteString(",Caption,,0,0,0,,")
		b.WriteString(sanitizeASS(c.Text))
		b.WriteString("\n")
	}
	return b.String()
}

func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, Inter, 64, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,4,1,2, 80,80,60,1
`)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, "\n", `\N`)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
