package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/cuestream/internal/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	env := filepath.Join(t.TempDir(), "empty.env")
	if err := os.WriteFile(env, nil, 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	root.SetArgs(append(args, "--env-file", env))
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseCommand_Table(t *testing.T) {
	in := writeFile(t, "resp.txt", `Sure: [{"start":1,"end":2,"text":"second"},{"start":0,"end":1,"text":"first"}]`)
	out, err := execute(t, "parse", in)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	first, second := strings.Index(out, "first"), strings.Index(out, "second")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected sorted table, got:\n%s", out)
	}
	if !strings.Contains(out, "Words") {
		t.Fatalf("missing header:\n%s", out)
	}
}

func TestParseCommand_SRT(t *testing.T) {
	in := writeFile(t, "resp.txt", "00:00:01,000 --> 00:00:02,500\nHello\n")
	out, err := execute(t, "parse", in, "--format", "srt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "1\n00:00:01,000 --> 00:00:02,500\nHello\n\n" {
		t.Fatalf("unexpected srt: %q", out)
	}
}

func TestParseCommand_Miss(t *testing.T) {
	in := writeFile(t, "resp.txt", "no cues here")
	if _, err := execute(t, "parse", in); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSplitCommand(t *testing.T) {
	in := writeFile(t, "cues.json", `[{"start":0,"end":16,"text":"a b c d e f g h i j k l m n o p"}]`)
	out, err := execute(t, "split", in, "--max-words", "8")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	var got []types.Cue
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(got) != 2 || got[0].End != 8 || got[1].Start != 8 || got[1].End != 16 {
		t.Fatalf("unexpected split: %+v", got)
	}
}

func TestReplayCommand(t *testing.T) {
	in := writeFile(t, "resp.txt", `[{"start":0,"end":1,"text":"hi"},{"start":1,"end":2,"text":"there"}]`)
	outDir := t.TempDir()
	out, err := execute(t, "replay", in, "--out", outDir, "--format", "vtt", "--chunk-size", "8", "--log-level", "error")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out, "completed") || !strings.Contains(out, "subtitles.vtt") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	runs, err := os.ReadDir(outDir)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run dir: %v %v", runs, err)
	}
	vtt, err := os.ReadFile(filepath.Join(outDir, runs[0].Name(), "subtitles.vtt"))
	if err != nil {
		t.Fatalf("read vtt: %v", err)
	}
	if !strings.HasPrefix(string(vtt), "WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nhi\n") {
		t.Fatalf("unexpected vtt:\n%s", vtt)
	}
}

func TestReplayCommand_MissingEnvFile(t *testing.T) {
	in := writeFile(t, "resp.txt", "x")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"replay", in, "--env-file", filepath.Join(t.TempDir(), "none.env")})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "config: env file") {
		t.Fatalf("expected env file error, got %v", err)
	}
}

func TestReplayCommand_ConfigErrors(t *testing.T) {
	in := writeFile(t, "resp.txt", "x")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"replay", in, "--format", "sub"}, "config: formats:"},
		{"split without words", []string{"replay", in, "--auto-split", "--max-words", "0"}, "config: max words"},
		{"negative until", []string{"replay", in, "--until", "-2"}, "config: until"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
