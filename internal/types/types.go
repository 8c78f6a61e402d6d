package types

import (
	"strings"
	"time"
)

// Cue is one timestamped subtitle span. Times are seconds on the source timeline.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Valid reports whether c can appear in a published sequence.
func (c Cue) Valid() bool {
	return c.Start >= 0 && c.End > c.Start && strings.TrimSpace(c.Text) != ""
}

func (c Cue) Duration() time.Duration {
	return time.Duration((c.End - c.Start) * float64(time.Second))
}

// WordCount counts whitespace-delimited tokens.
func WordCount(text string) int { return len(strings.Fields(text)) }

// CloneCues returns a copy that shares no backing array with in.
func CloneCues(in []Cue) []Cue {
	if in == nil {
		return nil
	}
	out := make([]Cue, len(in))
	copy(out, in)
	return out
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSalvaged  Outcome = "salvaged"
	OutcomeFailed    Outcome = "failed"
)

// Report is written next to the rendered subtitle files after a session.
type Report struct {
	SessionID  string            `json:"session_id"`
	Input      string            `json:"input"`
	Outcome    Outcome           `json:"outcome"`
	ChunkCount int               `json:"chunk_count"`
	TextLength int               `json:"text_length"`
	CueCount   int               `json:"cue_count"`
	EarlyStop  bool              `json:"early_stop,omitempty"`
	Files      map[string]string `json:"files,omitempty"`
	Error      string            `json:"error,omitempty"`
}
