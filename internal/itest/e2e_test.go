//go:build integration

package itest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/cuestream/internal/types"
)

func TestE2E_ReplaySSE(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	sample := filepath.Join(repoRoot, "internal", "itest", "testdata", "gemini_stream.sse")
	out := t.TempDir()

	res := runCLI(t, repoRoot, []string{
		"replay", sample,
		"--out", out,
		"--format", "srt,vtt,ass,json",
		"--auto-split", "--max-words", "4",
	}, nil)
	if res.exitCode != 0 {
		t.Fatalf("replay failed with %d:\n%s", res.exitCode, res.output)
	}
	if !strings.Contains(res.output, "completed") {
		t.Fatalf("expected completed outcome in output:\n%s", res.output)
	}

	rep, runDir := loadReport(t, out)
	if rep.Outcome != types.OutcomeCompleted {
		t.Fatalf("outcome = %q", rep.Outcome)
	}
	// Four cues; the three longer than four words split in two.
	if rep.CueCount != 7 {
		t.Fatalf("cue count = %d, want 7", rep.CueCount)
	}
	for _, f := range []string{"srt", "vtt", "ass", "json"} {
		name, ok := rep.Files[f]
		if !ok {
			t.Fatalf("report missing %s file", f)
		}
		if st, err := os.Stat(filepath.Join(runDir, name)); err != nil || st.Size() == 0 {
			t.Fatalf("%s output missing or empty: %v", f, err)
		}
	}
}

func TestE2E_ReplayEarlyStop(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	sample := filepath.Join(repoRoot, "internal", "itest", "testdata", "gemini_stream.sse")
	out := t.TempDir()

	res := runCLI(t, repoRoot, []string{"replay", sample, "--out", out, "--until", "4"}, nil)
	if res.exitCode != 0 {
		t.Fatalf("replay failed with %d:\n%s", res.exitCode, res.output)
	}
	rep, _ := loadReport(t, out)
	if !rep.EarlyStop || rep.CueCount != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestE2E_Parse(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	sample := filepath.Join(repoRoot, "internal", "itest", "testdata", "fenced_response.txt")

	res := runCLI(t, repoRoot, []string{"parse", sample}, nil)
	if res.exitCode != 0 {
		t.Fatalf("parse failed with %d:\n%s", res.exitCode, res.output)
	}
	if !strings.Contains(res.output, "Welcome back") {
		t.Fatalf("expected cue text in table:\n%s", res.output)
	}
}

func loadReport(t *testing.T, out string) (types.Report, string) {
	t.Helper()
	runs, err := os.ReadDir(out)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run dir: %v %v", runs, err)
	}
	runDir := filepath.Join(out, runs[0].Name())
	b, err := os.ReadFile(filepath.Join(runDir, "report.json"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var rep types.Report
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return rep, runDir
}
