package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func Main() {
	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cuestream",
		Short:         "Reconcile streamed model responses into subtitle cues",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", ".env", "Env file to load before reading the environment")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newStreamCmd("replay <file>", "Replay a recorded response through a reconcile session", false),
		newStreamCmd("follow <file>", "Reconcile a response file while another process writes it", true),
		newParseCmd(),
		newSplitCmd(),
	)
	return root
}

func newStreamCmd(use, short string, follow bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, args[0], follow)
		},
	}
	f := cmd.Flags()
	f.String("out", "", "Output directory (default out)")
	f.StringSlice("format", nil, "Output formats: srt, vtt, ass, json (default srt)")
	f.Bool("auto-split", false, "Split cues longer than --max-words")
	f.Int("max-words", 8, "Maximum words per cue when auto-splitting")
	f.Float64("until", 0, "Stop once a cue starts at or after this many seconds")
	f.String("metrics-addr", "", "Serve /metrics and /api/v1/session on this address")
	if follow {
		f.Duration("idle", 0, "Finish after the file is unchanged this long (default 10s)")
	} else {
		f.Int("chunk-size", 64, "Runes per chunk when replaying raw text")
		f.String("input-format", "auto", "Recording format: auto, raw, jsonl, sse")
		f.Duration("delay", 0, "Pause between replayed chunks")
	}
	return cmd
}

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a complete response once and print its cues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args[0])
		},
	}
	cmd.Flags().String("format", "table", "Output: table, srt, vtt, ass, json")
	cmd.Flags().Bool("auto-split", false, "Split cues longer than --max-words")
	cmd.Flags().Int("max-words", 8, "Maximum words per cue when auto-splitting")
	return cmd
}

func newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <cues.json>",
		Short: "Split long cues of a JSON cue array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, args[0])
		},
	}
	cmd.Flags().Int("max-words", 8, "Maximum words per cue")
	cmd.Flags().String("format", "json", "Output: table, srt, vtt, ass, json")
	return cmd
}
