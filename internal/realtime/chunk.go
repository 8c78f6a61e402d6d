package realtime

import "github.com/forPelevin/cuestream/internal/types"

// Chunk is one increment of a streaming response. It is either a TextChunk
// or a ParsedChunk.
type Chunk interface {
	// AccumulatedText is the full response text received so far.
	AccumulatedText() string
	isChunk()
}

// TextChunk carries only the cumulative response text; cues are parsed from it.
type TextChunk struct {
	Text string
}

func (c TextChunk) AccumulatedText() string { return c.Text }
func (TextChunk) isChunk()                  {}

// ParsedChunk carries cues an upstream aggregator already parsed. When Cues is
// non-empty they are trusted and parsing is skipped for the chunk.
type ParsedChunk struct {
	Text string
	Cues []types.Cue
}

func (c ParsedChunk) AccumulatedText() string { return c.Text }
func (ParsedChunk) isChunk()                  {}

// CompletionPayload is the terminal input of a session. The caller picks the
// variant: FinalText, SerializedCues or EarlyStop.
type CompletionPayload interface {
	isPayload()
}

// FinalText is the complete response text; it gets one final parse.
type FinalText string

// SerializedCues is a JSON cue array produced by an early stop.
type SerializedCues string

// EarlyStop carries pre-filtered cues from an early stop; the parser is not run.
type EarlyStop []types.Cue

func (FinalText) isPayload()      {}
func (SerializedCues) isPayload() {}
func (EarlyStop) isPayload()      {}
