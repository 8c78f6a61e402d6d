package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/forPelevin/cuestream/internal/realtime"
	"github.com/forPelevin/cuestream/internal/types"
)

// fakeSource replays fixed cumulative texts and then returns err.
type fakeSource struct {
	texts []string
	err   error
	sent  int
}

func (f *fakeSource) Stream(ctx context.Context, yield func(realtime.Chunk) error) error {
	for _, t := range f.texts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(realtime.TextChunk{Text: t}); err != nil {
			return err
		}
		f.sent++
	}
	return f.err
}

func cueJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"start":%d,"end":%d,"text":"line %d"}`, i, i+1, i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// growing returns cumulative texts of a response holding n cues, one text per
// complete cue, each long enough to be parsed.
func growing(n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		s := cueJSON(i)
		out = append(out, s[:len(s)-1]+","+strings.Repeat(" ", 100))
	}
	return out
}

func TestRun_Completes(t *testing.T) {
	t.Parallel()

	src := &fakeSource{texts: append(growing(2), cueJSON(3))}
	var updates int
	var sessionID string
	res, err := New(Deps{Source: src}).Run(context.Background(), Input{
		OnUpdate:  func(realtime.Update) { updates++ },
		OnSession: func(s *realtime.Session) { sessionID = s.ID() },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Cues) != 3 || res.Outcome != types.OutcomeCompleted || res.EarlyStop {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.SessionID == "" || res.SessionID != sessionID {
		t.Fatalf("session id %q, callback saw %q", res.SessionID, sessionID)
	}
	if res.Stats.ChunkCount != 3 || res.Stats.IsProcessing {
		t.Fatalf("stats: %+v", res.Stats)
	}
	if updates == 0 {
		t.Fatalf("expected streaming updates")
	}
}

func TestRun_StreamErrorSalvages(t *testing.T) {
	t.Parallel()

	src := &fakeSource{texts: growing(2), err: errors.New("connection reset")}
	res, err := New(Deps{Source: src}).Run(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != types.OutcomeSalvaged || len(res.Cues) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRun_StreamErrorWithoutCuesFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	src := &fakeSource{texts: []string{"thinking"}, err: boom}
	res, err := New(Deps{Source: src}).Run(context.Background(), Input{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
	if res.Outcome != types.OutcomeFailed || res.Cues != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRun_NoSubtitles(t *testing.T) {
	t.Parallel()

	src := &fakeSource{texts: []string{"I cannot help with that."}}
	_, err := New(Deps{Source: src}).Run(context.Background(), Input{})
	if !errors.Is(err, realtime.ErrNoSubtitles) {
		t.Fatalf("expected ErrNoSubtitles, got %v", err)
	}
}

func TestRun_EarlyStopCutsAtUntil(t *testing.T) {
	t.Parallel()

	src := &fakeSource{texts: growing(6)}
	res, err := New(Deps{Source: src}).Run(context.Background(), Input{Until: 2.5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.EarlyStop {
		t.Fatalf("expected early stop")
	}
	if src.sent >= 6 {
		t.Fatalf("source was not stopped, sent %d", src.sent)
	}
	want := []types.Cue{
		{Start: 0, End: 1, Text: "line 0"},
		{Start: 1, End: 2, Text: "line 1"},
		{Start: 2, End: 2.5, Text: "line 2"},
	}
	if len(res.Cues) != len(want) {
		t.Fatalf("cues = %+v, want %+v", res.Cues, want)
	}
	for i := range want {
		if res.Cues[i] != want[i] {
			t.Fatalf("cue %d = %+v, want %+v", i, res.Cues[i], want[i])
		}
	}
}

func TestRun_ParentCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Deps{Source: &fakeSource{texts: []string{"x"}}}).Run(ctx, Input{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCutAt(t *testing.T) {
	in := []types.Cue{{Start: 0, End: 3, Text: "a"}, {Start: 3, End: 4, Text: "b"}}
	got := cutAt(in, 3)
	if len(got) != 1 || got[0].End != 3 {
		t.Fatalf("cutAt = %+v", got)
	}
	if in[0].End != 3 || len(in) != 2 {
		t.Fatalf("input modified: %+v", in)
	}
}
