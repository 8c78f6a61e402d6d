package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cuestream/internal/ports"
	"github.com/forPelevin/cuestream/internal/realtime"
	"github.com/forPelevin/cuestream/internal/types"
)

type Deps struct {
	Source ports.ChunkSource
	Log    *zerolog.Logger
}

type Usecase struct {
	d   Deps
	log zerolog.Logger
}

func New(d Deps) Usecase {
	log := zerolog.Nop()
	if d.Log != nil {
		log = *d.Log
	}
	return Usecase{d: d, log: log.With().Str("component", "usecase").Logger()}
}

type Input struct {
	Options realtime.Options

	// Until stops the stream early once a cue starting at or after this many
	// seconds arrives. Cues are then cut at Until. Zero disables it.
	Until float64

	OnUpdate func(realtime.Update)
	OnStatus func(realtime.Status)
	// OnSession is called once the session exists, before any chunk is sent.
	OnSession func(*realtime.Session)
}

type Result struct {
	SessionID string
	Cues      []types.Cue
	Stats     realtime.Stats
	Outcome   types.Outcome
	EarlyStop bool
}

// Run streams the source through a reconcile session and returns the final
// cues. A session that ends without any cue returns a partial Result together
// with the observer error.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	if u.d.Source == nil {
		return Result{}, errors.New("usecase: no chunk source")
	}
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Written by observers on the session goroutine; every read happens after
	// a session call returned.
	var (
		final     []types.Cue
		failure   error
		early     []types.Cue
		stopEarly bool
	)
	obs := realtime.Observer{
		OnSubtitleUpdate: func(up realtime.Update) {
			if in.OnUpdate != nil {
				in.OnUpdate(up)
			}
			if in.Until > 0 && up.Streaming && !stopEarly && reached(up.Cues, in.Until) {
				early = cutAt(up.Cues, in.Until)
				stopEarly = true
				cancel()
			}
		},
		OnStatusUpdate: in.OnStatus,
		OnComplete:     func(c []types.Cue) { final = c },
		OnError:        func(err error) { failure = err },
	}

	opts := in.Options
	if opts.Logger == nil {
		opts.Logger = &u.log
	}
	sess := realtime.NewSession(obs, opts)
	defer sess.Close()
	if in.OnSession != nil {
		in.OnSession(sess)
	}
	log := u.log.With().Str("session", sess.ID()).Logger()

	var lastText string
	streamErr := u.d.Source.Stream(streamCtx, func(c realtime.Chunk) error {
		lastText = c.AccumulatedText()
		return sess.Send(streamCtx, c)
	})

	var err error
	switch {
	case stopEarly:
		log.Info().Float64("until", in.Until).Int("cues", len(early)).Msg("stopping stream early")
		err = sess.Complete(ctx, realtime.EarlyStop(early))
	case streamErr != nil && ctx.Err() != nil:
		return Result{SessionID: sess.ID()}, ctx.Err()
	case streamErr != nil:
		log.Warn().Err(streamErr).Msg("stream failed")
		err = sess.Fail(ctx, streamErr)
	default:
		err = sess.Complete(ctx, realtime.FinalText(lastText))
	}
	if err != nil {
		return Result{SessionID: sess.ID()}, fmt.Errorf("finish session: %w", err)
	}

	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return Result{SessionID: sess.ID()}, err
	}
	res := Result{
		SessionID: sess.ID(),
		Cues:      final,
		Stats:     snap.Stats,
		Outcome:   snap.Outcome,
		EarlyStop: stopEarly,
	}
	if failure != nil {
		return res, failure
	}
	return res, nil
}

func reached(cues []types.Cue, until float64) bool {
	for _, c := range cues {
		if c.Start >= until {
			return true
		}
	}
	return false
}

// cutAt keeps the cues that start before until and clamps their end to it.
func cutAt(cues []types.Cue, until float64) []types.Cue {
	out := make([]types.Cue, 0, len(cues))
	for _, c := range cues {
		if c.Start >= until {
			continue
		}
		if c.End > until {
			c.End = until
		}
		out = append(out, c)
	}
	return out
}
