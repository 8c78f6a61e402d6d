package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cuestream/internal/domain/subtitles"
	"github.com/forPelevin/cuestream/internal/ports"
	"github.com/forPelevin/cuestream/internal/ports/adapters/follow"
	"github.com/forPelevin/cuestream/internal/ports/adapters/replay"
	"github.com/forPelevin/cuestream/internal/realtime"
	"github.com/forPelevin/cuestream/internal/types"
	"github.com/forPelevin/cuestream/internal/usecase"
)

type Config struct {
	// Input is a recorded response file ("-" for stdin), or the file to tail
	// when Follow is set.
	Input   string
	Follow  bool
	OutDir  string
	Formats []subtitles.Format

	Options realtime.Options
	Until   float64

	// Replay tuning.
	ReplayFormat replay.Format
	ChunkSize    int
	Delay        time.Duration

	// FollowIdle ends a followed stream after this long without writes.
	FollowIdle time.Duration

	Logger    *zerolog.Logger
	OnSession func(*realtime.Session)
	OnUpdate  func(realtime.Update)
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	switch {
	case c.Follow:
		if c.Input == "-" {
			return errors.New("cannot follow stdin")
		}
		if _, err := os.Stat(filepath.Dir(c.Input)); err != nil {
			return fmt.Errorf("stat input dir: %w", err)
		}
	case c.Input != "-":
		if _, err := os.Stat(c.Input); err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
	}
	if len(c.Formats) == 0 {
		return errors.New("at least one output format is required")
	}
	if c.Until < 0 {
		return errors.New("until must be >= 0")
	}
	return nil
}

func Run(ctx context.Context, cfg Config) (types.Report, error) {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	log = log.With().Str("component", "pipeline").Logger()

	var src ports.ChunkSource
	if cfg.Follow {
		src = follow.New(cfg.Input, cfg.FollowIdle, &log)
	} else {
		src = replay.New(cfg.Input, replay.Options{
			Format:    cfg.ReplayFormat,
			ChunkSize: cfg.ChunkSize,
			Delay:     cfg.Delay,
			Logger:    &log,
		})
	}
	uc := usecase.New(usecase.Deps{Source: src, Log: &log})

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, cfg.Input, time.Now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return types.Report{}, err
	}
	log.Info().Str("dir", runOutDir).Msg("output run dir")

	opts := cfg.Options
	if opts.Logger == nil {
		opts.Logger = &log
	}
	res, runErr := uc.Run(ctx, usecase.Input{
		Options:   opts,
		Until:     cfg.Until,
		OnUpdate:  cfg.OnUpdate,
		OnSession: cfg.OnSession,
		OnStatus: func(s realtime.Status) {
			ev := log.Debug()
			if s.Type == realtime.StatusWarning {
				ev = log.Warn()
			}
			ev.Str("status", string(s.Type)).Msg(s.Message)
		},
	})

	rep := types.Report{
		SessionID:  res.SessionID,
		Input:      cfg.Input,
		Outcome:    res.Outcome,
		ChunkCount: res.Stats.ChunkCount,
		TextLength: res.Stats.TextLength,
		CueCount:   len(res.Cues),
		EarlyStop:  res.EarlyStop,
	}
	if runErr != nil {
		// Cancelled before the session finished: nothing to report.
		if res.Outcome == "" {
			return rep, runErr
		}
		rep.Error = runErr.Error()
		if err := writeReport(runOutDir, rep); err != nil {
			log.Error().Err(err).Msg("write report")
		}
		return rep, runErr
	}

	rep.Files = make(map[string]string, len(cfg.Formats))
	for _, f := range cfg.Formats {
		b, err := subtitles.Render(f, res.Cues)
		if err != nil {
			return rep, fmt.Errorf("render %s: %w", f, err)
		}
		name := "subtitles." + string(f)
		if err := os.WriteFile(filepath.Join(runOutDir, name), b, 0o644); err != nil {
			return rep, err
		}
		rep.Files[string(f)] = name
	}
	if err := writeReport(runOutDir, rep); err != nil {
		return rep, err
	}
	log.Info().
		Str("outcome", string(rep.Outcome)).
		Int("cues", rep.CueCount).
		Int("chunks", rep.ChunkCount).
		Str("dir", runOutDir).
		Msg("report written")
	return rep, nil
}

func writeReport(dir string, rep types.Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "report.json"), b, 0o644)
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.ChunkSource = (*replay.Source)(nil)
var _ ports.ChunkSource = (*follow.Source)(nil)
