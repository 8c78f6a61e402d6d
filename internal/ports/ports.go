package ports

import (
	"context"

	"github.com/forPelevin/cuestream/internal/realtime"
)

// ChunkSource delivers a streaming model response as cumulative chunks.
// Stream calls yield once per increment, in order, and returns nil when the
// response ended normally. An error from yield aborts the stream and is
// returned unchanged.
type ChunkSource interface {
	Stream(ctx context.Context, yield func(realtime.Chunk) error) error
}
