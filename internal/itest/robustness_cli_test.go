//go:build integration

package itest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

const cliTimeout = 30 * time.Second

type robustCase struct {
	name            string
	args            func(t *testing.T, repoRoot string) []string
	env             map[string]string
	wantContains    []string
	wantNotContains []string
}

type cliRunResult struct {
	exitCode int
	output   string
}

func TestRobustness_ArgsValidation(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	sample := filepath.Join(repoRoot, "internal", "itest", "testdata", "gemini_stream.sse")

	cases := []robustCase{
		{
			name:         "no args",
			args:         staticArgs("replay"),
			wantContains: []string{"accepts 1 arg(s), received 0"},
		},
		{
			name:         "too many args",
			args:         staticArgs("replay", sample, "extra"),
			wantContains: []string{"accepts 1 arg(s), received 2"},
		},
		{
			name:         "unknown flag",
			args:         staticArgs("replay", sample, "--wat"),
			wantContains: []string{"unknown flag: --wat"},
		},
		{
			name:         "max words non int",
			args:         staticArgs("replay", sample, "--max-words", "nope"),
			wantContains: []string{`invalid argument "nope" for "--max-words"`},
		},
		{
			name:         "auto split without words",
			args:         staticArgs("replay", sample, "--auto-split", "--max-words", "0"),
			wantContains: []string{"config: max words must be > 0 when auto-split is on"},
		},
		{
			name:         "unknown output format",
			args:         staticArgs("replay", sample, "--format", "sub"),
			wantContains: []string{`config: formats: unknown subtitle format "sub"`},
		},
		{
			name:         "chunk size from env",
			args:         staticArgs("replay", sample),
			env:          map[string]string{"CUESTREAM_CHUNK_SIZE": "0"},
			wantContains: []string{"config: chunk size must be > 0"},
		},
		{
			name:         "negative until",
			args:         staticArgs("replay", sample, "--until", "-1"),
			wantContains: []string{"config: until must be >= 0"},
		},
		{
			name:         "idle is follow only",
			args:         staticArgs("replay", sample, "--idle", "1s"),
			wantContains: []string{"unknown flag: --idle"},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func TestRobustness_InvalidInput(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	testdata := filepath.Join(repoRoot, "internal", "itest", "testdata")

	cases := []robustCase{
		{
			name:         "missing input path",
			args:         staticArgs("replay", filepath.Join(testdata, "does-not-exist.txt")),
			wantContains: []string{"config: stat input:"},
		},
		{
			name:         "input is directory",
			args:         staticArgs("replay", testdata),
			wantContains: []string{"read recording:"},
		},
		{
			name:         "response without subtitles",
			args:         func(t *testing.T, _ string) []string { return []string{"replay", filepath.Join(testdata, "refusal.txt"), "--out", t.TempDir()} },
			wantContains: []string{"no valid subtitles found in final response"},
		},
		{
			name: "out points to file",
			args: func(t *testing.T, _ string) []string {
				t.Helper()
				tmp := t.TempDir()
				outFile := filepath.Join(tmp, "out-file")
				if err := os.WriteFile(outFile, []byte("x"), 0o644); err != nil {
					t.Fatalf("write out file fixture: %v", err)
				}
				return []string{"replay", filepath.Join(testdata, "gemini_stream.sse"), "--out", outFile}
			},
			wantContains: []string{"not a directory"},
		},
		{
			name:         "follow dir missing",
			args:         staticArgs("follow", filepath.Join(testdata, "nope", "resp.txt")),
			wantContains: []string{"config: stat input dir:"},
		},
		{
			name:         "split rejects prose",
			args:         staticArgs("split", filepath.Join(testdata, "refusal.txt")),
			wantContains: []string{"decode cue array:"},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func runRobustCases(t *testing.T, repoRoot string, cases []robustCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := runCLI(t, repoRoot, tc.args(t, repoRoot), tc.env)
			if res.exitCode == 0 {
				t.Fatalf("expected non-zero exit code, got 0\noutput:\n%s", res.output)
			}
			for _, want := range tc.wantContains {
				if !strings.Contains(res.output, want) {
					t.Fatalf("expected output to contain %q\noutput:\n%s", want, res.output)
				}
			}
			for _, notWant := range tc.wantNotContains {
				if strings.Contains(res.output, notWant) {
					t.Fatalf("expected output to not contain %q\noutput:\n%s", notWant, res.output)
				}
			}
		})
	}
}

func runCLI(t *testing.T, repoRoot string, args []string, env map[string]string) cliRunResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	cmdArgs := append([]string{"run", "./cmd/cuestream"}, args...)
	cmd := exec.CommandContext(ctx, "go", cmdArgs...)
	cmd.Dir = repoRoot
	cmd.Env = mergeEnv(
		os.Environ(),
		map[string]string{
			"NO_COLOR": "1",
			"TERM":     "dumb",
		},
		env,
	)

	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatalf("command timed out after %s: go %s", cliTimeout, strings.Join(cmdArgs, " "))
	}

	res := cliRunResult{output: string(out)}
	if err == nil {
		res.exitCode = 0
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res
	}

	t.Fatalf("run command: %v\noutput:\n%s", err, string(out))
	return cliRunResult{}
}

func mergeEnv(base []string, overrides ...map[string]string) []string {
	env := make(map[string]string, len(base))
	for _, kv := range base {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		env[kv[:i]] = kv[i+1:]
	}

	for _, set := range overrides {
		for k, v := range set {
			env[k] = v
		}
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func mustRepoRoot(t *testing.T) string {
	t.Helper()

	repoRoot, err := findRepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	return repoRoot
}

func staticArgs(args ...string) func(t *testing.T, _ string) []string {
	clone := append([]string(nil), args...)
	return func(t *testing.T, _ string) []string {
		t.Helper()
		return append([]string(nil), clone...)
	}
}
