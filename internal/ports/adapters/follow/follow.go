package follow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/forPelevin/cuestream/internal/realtime"
)

// ErrRemoved is returned when the followed file disappears mid-stream.
var ErrRemoved = errors.New("follow: file removed")

const defaultIdle = 10 * time.Second

// Source tails a file another process is still writing a model response
// into. Every change that extends the previous text yields the whole file as
// one cumulative chunk; the
// stream ends once the file stays unchanged for the idle period.
type Source struct {
	path string
	idle time.Duration
	log  zerolog.Logger
}

func New(path string, idle time.Duration, log *zerolog.Logger) *Source {
	if idle <= 0 {
		idle = defaultIdle
	}
	l := zerolog.Nop()
	if log != nil {
		l = *log
	}
	return &Source{
		path: filepath.Clean(path),
		idle: idle,
		log:  l.With().Str("component", "follow").Str("path", path).Logger(),
	}
}

func (s *Source) Stream(ctx context.Context, yield func(realtime.Chunk) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("follow: create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so a file created after startup is still seen.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("follow: watch %s: %w", filepath.Dir(s.path), err)
	}

	var last string
	emit := func() error {
		b, err := os.ReadFile(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("follow: read: %w", err)
		}
		text := string(b)
		if text == "" || text == last {
			return nil
		}
		// Chunks are cumulative; a truncated or rewritten file is skipped
		// until it extends what was already sent.
		if !strings.HasPrefix(text, last) {
			s.log.Warn().Int("bytes", len(b)).Int("sent", len(last)).Msg("file no longer extends the streamed text, skipping")
			return nil
		}
		last = text
		s.log.Debug().Int("bytes", len(b)).Msg("file changed")
		return yield(realtime.TextChunk{Text: text})
	}

	if err := emit(); err != nil {
		return err
	}

	timer := time.NewTimer(s.idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			s.log.Debug().Dur("idle", s.idle).Msg("no writes, ending stream")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return ErrRemoved
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if err := emit(); err != nil {
				return err
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.idle)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("follow: watcher: %w", err)
		}
	}
}
