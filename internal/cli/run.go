package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forPelevin/cuestream/internal/api"
	"github.com/forPelevin/cuestream/internal/config"
	"github.com/forPelevin/cuestream/internal/domain/cues"
	"github.com/forPelevin/cuestream/internal/domain/subtitles"
	"github.com/forPelevin/cuestream/internal/logging"
	"github.com/forPelevin/cuestream/internal/pipeline"
	"github.com/forPelevin/cuestream/internal/ports/adapters/replay"
	"github.com/forPelevin/cuestream/internal/realtime"
	"github.com/forPelevin/cuestream/internal/types"
)

// loadConfig merges env, .env and the flags the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	ov := config.Overrides{}
	ov.EnvFile, _ = flags.GetString("env-file")
	ov.RequireEnvFile = flags.Changed("env-file")
	ov.LogLevel, _ = flags.GetString("log-level")

	if flags.Lookup("out") != nil {
		ov.OutDir, _ = flags.GetString("out")
	}
	if flags.Lookup("metrics-addr") != nil {
		ov.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("format") {
		ov.Formats, _ = flags.GetStringSlice("format")
	}
	if flags.Changed("auto-split") {
		v, _ := flags.GetBool("auto-split")
		ov.AutoSplit = &v
	}
	if flags.Changed("max-words") {
		v, _ := flags.GetInt("max-words")
		ov.MaxWords = &v
	}
	if flags.Changed("chunk-size") {
		v, _ := flags.GetInt("chunk-size")
		ov.ChunkSize = &v
	}
	if flags.Changed("idle") {
		v, _ := flags.GetDuration("idle")
		ov.FollowIdle = &v
	}

	cfg, err := config.Load(ov)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func reconcileOptions(cfg *config.Config, log *zerolog.Logger) realtime.Options {
	return realtime.Options{
		AutoSplit:      cfg.AutoSplit,
		MaxWordsPerCue: cfg.MaxWords,
		ParseInterval:  cfg.ParseInterval,
		MinParseLength: cfg.MinParseLength,
		Logger:         log,
	}
}

func runStream(cmd *cobra.Command, input string, follow bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	formats, err := cfg.SubtitleFormats()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if input != "-" {
		if input, err = filepath.Abs(input); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := &api.Tracker{}
	if cfg.MetricsAddr != "" {
		srv := api.NewServer(cfg.MetricsAddr, tracker, log)
		ln, err := srv.Listen()
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		go func() {
			if err := srv.Start(ln); err != nil {
				log.Error().Err(err).Msg("http server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	until, _ := cmd.Flags().GetFloat64("until")
	pcfg := pipeline.Config{
		Input:      input,
		Follow:     follow,
		OutDir:     cfg.OutDir,
		Formats:    formats,
		Options:    reconcileOptions(cfg, &log),
		Until:      until,
		ChunkSize:  cfg.ChunkSize,
		FollowIdle: cfg.FollowIdle,
		Logger:     &log,
		OnSession:  tracker.Set,
	}
	if !follow {
		f, _ := cmd.Flags().GetString("input-format")
		pcfg.ReplayFormat = replay.Format(f)
		pcfg.Delay, _ = cmd.Flags().GetDuration("delay")
	}
	if err := pcfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	rep, err := pipeline.Run(ctx, pcfg)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), rep)
	return nil
}

func printReport(w io.Writer, rep types.Report) {
	rows := [][]string{
		{"session", rep.SessionID},
		{"outcome", string(rep.Outcome)},
		{"subtitles", strconv.Itoa(rep.CueCount)},
		{"chunks", strconv.Itoa(rep.ChunkCount)},
	}
	if rep.EarlyStop {
		rows = append(rows, []string{"early stop", "yes"})
	}
	for _, f := range sortedKeys(rep.Files) {
		rows = append(rows, []string{f, rep.Files[f]})
	}
	fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, nil))
}

func readInput(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func runParse(cmd *cobra.Command, input string) error {
	raw, err := readInput(input)
	if err != nil {
		return err
	}
	out, err := cues.Parse(raw)
	if err != nil {
		return err
	}
	out = subtitles.Normalize(out)
	if split, _ := cmd.Flags().GetBool("auto-split"); split {
		n, _ := cmd.Flags().GetInt("max-words")
		out = subtitles.AutoSplit(out, n)
	}
	format, _ := cmd.Flags().GetString("format")
	return writeCues(cmd.OutOrStdout(), format, out)
}

func runSplit(cmd *cobra.Command, input string) error {
	raw, err := readInput(input)
	if err != nil {
		return err
	}
	in, err := cues.DecodeArray(raw)
	if err != nil {
		return err
	}
	n, _ := cmd.Flags().GetInt("max-words")
	format, _ := cmd.Flags().GetString("format")
	return writeCues(cmd.OutOrStdout(), format, subtitles.AutoSplit(subtitles.Normalize(in), n))
}

func writeCues(w io.Writer, format string, list []types.Cue) error {
	if format == "table" {
		fmt.Fprintln(w, cueTable(list))
		return nil
	}
	f, err := subtitles.ParseFormat(format)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	b, err := subtitles.Render(f, list)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
