package subtitles

import (
	"sort"
	"strings"

	"github.com/forPelevin/cuestream/internal/types"
)

// minCueDuration keeps interpolated sub-cues strictly positive when the
// source interval is degenerate.
const minCueDuration = 0.001

// AutoSplit breaks every cue longer than maxWords words into consecutive
// sub-cues of at most maxWords words. Sub-cue times are interpolated by word
// share over the original interval: the first keeps the original start, the
// last keeps the original end and neighbours touch. maxWords <= 0 disables
// splitting.
func AutoSplit(cues []types.Cue, maxWords int) []types.Cue {
	if maxWords <= 0 {
		return cues
	}
	out := make([]types.Cue, 0, len(cues))
	for _, c := range cues {
		words := strings.Fields(c.Text)
		if len(words) <= maxWords {
			out = append(out, c)
			continue
		}
		out = append(out, splitCue(c, words, maxWords)...)
	}
	return out
}

func splitCue(c types.Cue, words []string, maxWords int) []types.Cue {
	total := len(words)
	span := c.End - c.Start
	n := (total + maxWords - 1) / maxWords

	out := make([]types.Cue, 0, n)
	prevEnd := c.Start
	for i := 0; i < n; i++ {
		lo := i * maxWords
		hi := lo + maxWords
		if hi > total {
			hi = total
		}
		start := prevEnd
		end := c.Start + span*float64(hi)/float64(total)
		if i == n-1 {
			end = c.End
		}
		if end-start < minCueDuration {
			end = start + minCueDuration
		}
		out = append(out, types.Cue{Start: start, End: end, Text: strings.Join(words[lo:hi], " ")})
		prevEnd = end
	}
	return out
}

// Normalize drops cues that break the Cue invariants and stably sorts the rest
// by start. Already ordered input keeps its order.
func Normalize(cues []types.Cue) []types.Cue {
	out := make([]types.Cue, 0, len(cues))
	for _, c := range cues {
		if c.Valid() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
