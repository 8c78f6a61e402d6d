package realtime

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cuestream/internal/domain/cues"
	"github.com/forPelevin/cuestream/internal/domain/subtitles"
	"github.com/forPelevin/cuestream/internal/metrics"
	"github.com/forPelevin/cuestream/internal/types"
)

var (
	// ErrNoSubtitles is reported through OnError when a session ends without
	// any usable cue, final or salvaged.
	ErrNoSubtitles = errors.New("no valid subtitles found in final response")

	// ErrSessionClosed is returned when a chunk or terminal call arrives after
	// the session already completed or failed. Reset reopens it.
	ErrSessionClosed = errors.New("realtime: session already finished")
)

const (
	DefaultMaxWordsPerCue = 8
	DefaultParseInterval  = 3
	DefaultMinParseLength = 100
)

type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseFunc extracts cues from accumulated response text. A non-nil error is
// a miss, not a failure.
type ParseFunc func(raw string) ([]types.Cue, error)

type Options struct {
	AutoSplit      bool
	MaxWordsPerCue int

	// A parse is attempted on every ParseInterval-th chunk, and on every chunk
	// once the text reaches MinParseLength runes.
	ParseInterval  int
	MinParseLength int

	// Parse defaults to cues.Parse.
	Parse  ParseFunc
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxWordsPerCue == 0 {
		o.MaxWordsPerCue = DefaultMaxWordsPerCue
	}
	if o.ParseInterval <= 0 {
		o.ParseInterval = DefaultParseInterval
	}
	if o.MinParseLength <= 0 {
		o.MinParseLength = DefaultMinParseLength
	}
	if o.Parse == nil {
		o.Parse = cues.Parse
	}
	return o
}

type Stats struct {
	ChunkCount    int  `json:"chunk_count"`
	TextLength    int  `json:"text_length"`
	SubtitleCount int  `json:"subtitle_count"`
	IsProcessing  bool `json:"is_processing"`
}

// Reconciler merges a streamed response into an ever-improving cue list.
// It is not safe for concurrent use; see Session for a serialized wrapper.
type Reconciler struct {
	obs  Observer
	opts Options
	log  zerolog.Logger

	state      State
	outcome    types.Outcome
	text       string
	current    []types.Cue
	lastGood   []types.Cue
	chunkCount int
	streaming  bool
}

func New(obs Observer, opts Options) *Reconciler {
	opts = opts.withDefaults()
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	r := &Reconciler{
		obs:  obs.withDefaults(),
		opts: opts,
		log:  log.With().Str("component", "reconciler").Logger(),
	}
	r.log.Debug().
		Bool("auto_split", opts.AutoSplit).
		Int("max_words", opts.MaxWordsPerCue).
		Msg("reconciler initialized")
	return r
}

// ProcessChunk folds one stream increment into the session.
func (r *Reconciler) ProcessChunk(chunk Chunk) error {
	if r.finished() {
		return ErrSessionClosed
	}
	if chunk == nil {
		return errors.New("realtime: nil chunk")
	}
	if !r.streaming {
		r.streaming = true
		r.state = StateStreaming
		r.status(StatusLoading, "Processing streaming response...")
	}

	r.chunkCount++
	r.text = chunk.AccumulatedText()

	if pc, ok := chunk.(ParsedChunk); ok && len(pc.Cues) > 0 {
		if out := r.prepare(pc.Cues); len(out) > 0 {
			metrics.ChunksTotal.WithLabelValues("parsed").Inc()
			r.commit(out)
			r.progress()
			return nil
		}
	}

	metrics.ChunksTotal.WithLabelValues("text").Inc()
	textLen := r.textLength()
	if r.chunkCount%r.opts.ParseInterval == 0 || textLen >= r.opts.MinParseLength {
		r.attemptParse()
	} else {
		r.log.Debug().Int("chunk", r.chunkCount).Int("text_length", textLen).Msg("parse deferred")
	}
	r.progress()
	return nil
}

func (r *Reconciler) attemptParse() {
	parsed, err := r.opts.Parse(r.text)
	if err == nil && len(parsed) > 0 {
		if out := r.prepare(parsed); len(out) > 0 {
			metrics.ParseAttemptsTotal.WithLabelValues("hit").Inc()
			r.log.Debug().
				Int("chunk", r.chunkCount).
				Int("cues", len(out)).
				Int("previous", len(r.current)).
				Msg("parsed subtitles")
			r.commit(out)
			return
		}
	}
	metrics.ParseAttemptsTotal.WithLabelValues("miss").Inc()
	r.log.Debug().Err(err).Int("chunk", r.chunkCount).Msg("no valid subtitles parsed yet")
}

// commit publishes a non-empty streaming result.
func (r *Reconciler) commit(out []types.Cue) {
	r.current = out
	r.lastGood = types.CloneCues(out)
	metrics.PublishedCues.Observe(float64(len(out)))
	r.obs.OnSubtitleUpdate(Update{
		Cues:       types.CloneCues(out),
		Streaming:  true,
		ChunkCount: r.chunkCount,
		TextLength: r.textLength(),
	})
}

// prepare drops invalid cues, applies the auto-split pass and orders by start.
func (r *Reconciler) prepare(in []types.Cue) []types.Cue {
	out := subtitles.Normalize(in)
	if r.opts.AutoSplit && len(out) > 0 {
		n := len(out)
		out = subtitles.Normalize(subtitles.AutoSplit(out, r.opts.MaxWordsPerCue))
		if len(out) != n {
			r.log.Debug().Int("before", n).Int("after", len(out)).Msg("auto-split")
		}
	}
	return out
}

func (r *Reconciler) progress() {
	r.status(StatusLoading, fmt.Sprintf("Processing... (%d chunks, %d subtitles found)", r.chunkCount, len(r.current)))
}

// Complete ends the stream. The resolved cues are published; when none
// resolve the last good result is delivered instead, and only when there is
// none OnError receives ErrNoSubtitles.
func (r *Reconciler) Complete(payload CompletionPayload) error {
	if r.finished() {
		return ErrSessionClosed
	}
	r.streaming = false
	r.state = StateCompleted

	resolved, textLen := r.resolve(payload)
	if out := r.prepare(resolved); len(out) > 0 {
		r.current = out
		r.lastGood = types.CloneCues(out)
		r.outcome = types.OutcomeCompleted
		metrics.PublishedCues.Observe(float64(len(out)))
		metrics.SessionsTotal.WithLabelValues(string(types.OutcomeCompleted)).Inc()
		r.log.Info().Int("cues", len(out)).Int("chunks", r.chunkCount).Msg("stream completed")

		r.obs.OnSubtitleUpdate(Update{
			Cues:       types.CloneCues(out),
			Streaming:  false,
			Complete:   true,
			ChunkCount: r.chunkCount,
			TextLength: textLen,
		})
		r.status(StatusSuccess, fmt.Sprintf("Processing complete! Generated %d subtitles.", len(out)))
		r.obs.OnComplete(types.CloneCues(out))
		return nil
	}

	if len(r.lastGood) > 0 {
		r.current = types.CloneCues(r.lastGood)
		r.outcome = types.OutcomeSalvaged
		metrics.SessionsTotal.WithLabelValues(string(types.OutcomeSalvaged)).Inc()
		r.log.Warn().Int("cues", len(r.lastGood)).Msg("final response unusable, using last valid subtitles")
		r.status(StatusWarning, fmt.Sprintf("Processing complete with partial results. Using %d previously parsed subtitles.", len(r.lastGood)))
		r.obs.OnComplete(types.CloneCues(r.lastGood))
		return nil
	}

	r.outcome = types.OutcomeFailed
	metrics.SessionsTotal.WithLabelValues(string(types.OutcomeFailed)).Inc()
	r.log.Error().Int("chunks", r.chunkCount).Str("text", cues.Truncate(r.text, 120)).Msg("no valid subtitles found in final response")
	r.obs.OnError(ErrNoSubtitles)
	return nil
}

// resolve turns a completion payload into candidate cues and the text length
// reported with the final update.
func (r *Reconciler) resolve(payload CompletionPayload) ([]types.Cue, int) {
	switch p := payload.(type) {
	case EarlyStop:
		r.log.Debug().Int("cues", len(p)).Msg("using pre-filtered subtitles from early stop")
		return types.CloneCues(p), 0
	case SerializedCues:
		decoded, err := cues.DecodeArray(string(p))
		if err == nil {
			r.log.Debug().Int("cues", len(decoded)).Msg("using serialized subtitles from early stop")
			return decoded, 0
		}
		// Not a clean array after all; treat it as response text.
		r.log.Debug().Err(err).Msg("early stop payload did not decode, parsing as text")
		r.text = string(p)
	case FinalText:
		r.text = string(p)
	case nil:
	default:
		r.log.Warn().Str("payload", fmt.Sprintf("%T", payload)).Msg("unknown completion payload")
		return nil, 0
	}

	parsed, err := r.opts.Parse(r.text)
	if err != nil {
		r.log.Debug().Err(err).Msg("final parse missed")
		return nil, r.textLength()
	}
	return parsed, r.textLength()
}

// Fail ends the stream with a transport error. Partial results win over the
// error: when a good result exists it is delivered through OnComplete.
func (r *Reconciler) Fail(err error) error {
	if r.finished() {
		return ErrSessionClosed
	}
	if err == nil {
		err = errors.New("stream failed")
	}
	r.streaming = false
	r.state = StateErrored

	if len(r.lastGood) > 0 {
		r.outcome = types.OutcomeSalvaged
		metrics.SessionsTotal.WithLabelValues(string(types.OutcomeSalvaged)).Inc()
		r.log.Warn().Err(err).Int("cues", len(r.lastGood)).Msg("stream error, salvaging partial results")
		r.status(StatusWarning, fmt.Sprintf("Processing interrupted. Saved %d subtitles.", len(r.lastGood)))
		r.obs.OnComplete(types.CloneCues(r.lastGood))
		return nil
	}

	r.outcome = types.OutcomeFailed
	metrics.SessionsTotal.WithLabelValues(string(types.OutcomeFailed)).Inc()
	r.log.Error().Err(err).Msg("stream error with nothing to salvage")
	r.obs.OnError(err)
	return nil
}

// Reset returns the reconciler to Idle and forgets every result.
func (r *Reconciler) Reset() {
	r.text = ""
	r.current = nil
	r.lastGood = nil
	r.chunkCount = 0
	r.streaming = false
	r.state = StateIdle
	r.outcome = ""
	r.log.Debug().Msg("reset")
}

func (r *Reconciler) Stats() Stats {
	return Stats{
		ChunkCount:    r.chunkCount,
		TextLength:    r.textLength(),
		SubtitleCount: len(r.current),
		IsProcessing:  r.streaming,
	}
}

func (r *Reconciler) State() State { return r.state }

// Outcome is empty until the session reaches a terminal state.
func (r *Reconciler) Outcome() types.Outcome { return r.outcome }

// Cues returns a copy of the current best known cues.
func (r *Reconciler) Cues() []types.Cue { return types.CloneCues(r.current) }

func (r *Reconciler) finished() bool {
	return r.state == StateCompleted || r.state == StateErrored
}

func (r *Reconciler) status(t StatusType, msg string) {
	r.obs.OnStatusUpdate(Status{Message: msg, Type: t})
}

func (r *Reconciler) textLength() int { return utf8.RuneCountInString(r.text) }
