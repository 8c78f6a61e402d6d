package realtime

import "github.com/forPelevin/cuestream/internal/types"

type StatusType string

const (
	StatusLoading StatusType = "loading"
	StatusSuccess StatusType = "success"
	StatusWarning StatusType = "warning"
)

type Status struct {
	Message string     `json:"message"`
	Type    StatusType `json:"type"`
}

// Update is published every time the best known cue set changes.
type Update struct {
	Cues       []types.Cue `json:"subtitles"`
	Streaming  bool        `json:"is_streaming"`
	Complete   bool        `json:"is_complete,omitempty"`
	ChunkCount int         `json:"chunk_count"`
	TextLength int         `json:"text_length"`
}

// Observer receives everything a reconciler reports. Nil fields are ignored.
type Observer struct {
	OnSubtitleUpdate func(Update)
	OnStatusUpdate   func(Status)
	OnComplete       func([]types.Cue)
	OnError          func(error)
}

func (o Observer) withDefaults() Observer {
	if o.OnSubtitleUpdate == nil {
		o.OnSubtitleUpdate = func(Update) {}
	}
	if o.OnStatusUpdate == nil {
		o.OnStatusUpdate = func(Status) {}
	}
	if o.OnComplete == nil {
		o.OnComplete = func([]types.Cue) {}
	}
	if o.OnError == nil {
		o.OnError = func(error) {}
	}
	return o
}
