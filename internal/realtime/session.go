package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/forPelevin/cuestream/internal/metrics"
	"github.com/forPelevin/cuestream/internal/types"
)

// ErrSessionStopped is returned by every Session call after Close.
var ErrSessionStopped = errors.New("realtime: session stopped")

// Snapshot is a consistent read of a session taken between two commands.
type Snapshot struct {
	ID      string        `json:"id"`
	State   string        `json:"state"`
	Stats   Stats         `json:"stats"`
	Cues    []types.Cue   `json:"subtitles"`
	Outcome types.Outcome `json:"outcome,omitempty"`
}

// Session owns a Reconciler on a single goroutine so producers and readers on
// other goroutines never race on its state. Observers run on that goroutine
// and must not call back into the Session.
type Session struct {
	id string
	r  *Reconciler

	cmds chan command
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

type command struct {
	fn    func(*Reconciler) error
	reply chan error
}

func NewSession(obs Observer, opts Options) *Session {
	s := &Session{
		id:   uuid.NewString(),
		cmds: make(chan command),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	if opts.Logger != nil {
		l := opts.Logger.With().Str("session", s.id).Logger()
		opts.Logger = &l
	}
	s.r = New(obs, opts)
	metrics.ActiveSessions.Inc()
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) loop() {
	defer close(s.done)
	defer metrics.ActiveSessions.Dec()
	for {
		select {
		case <-s.quit:
			return
		case c := <-s.cmds:
			c.reply <- c.fn(s.r)
		}
	}
}

func (s *Session) do(ctx context.Context, fn func(*Reconciler) error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- c:
	case <-s.quit:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the command always runs to completion.
	return <-c.reply
}

func (s *Session) Send(ctx context.Context, chunk Chunk) error {
	return s.do(ctx, func(r *Reconciler) error { return r.ProcessChunk(chunk) })
}

func (s *Session) Complete(ctx context.Context, payload CompletionPayload) error {
	return s.do(ctx, func(r *Reconciler) error { return r.Complete(payload) })
}

func (s *Session) Fail(ctx context.Context, err error) error {
	return s.do(ctx, func(r *Reconciler) error { return r.Fail(err) })
}

func (s *Session) Reset(ctx context.Context) error {
	return s.do(ctx, func(r *Reconciler) error {
		r.Reset()
		return nil
	})
}

func (s *Session) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.do(ctx, func(r *Reconciler) error {
		st = r.Stats()
		return nil
	})
	return st, err
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{ID: s.id}
	err := s.do(ctx, func(r *Reconciler) error {
		snap.State = r.State().String()
		snap.Stats = r.Stats()
		snap.Cues = r.Cues()
		snap.Outcome = r.Outcome()
		return nil
	})
	return snap, err
}

// Close stops the session goroutine and waits for it to exit. It is safe to
// call more than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
