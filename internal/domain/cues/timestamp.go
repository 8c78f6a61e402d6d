package cues

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var unitTimestampRE = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+(?:\.\d+)?)s)?(?:(\d+)ms)?$`)

// ParseTimestamp converts a timestamp into seconds. Accepted forms:
// "HH:MM:SS,mmm", "HH:MM:SS.mmm", "MM:SS(.mmm)", "SS(.mmm)" and the unit
// form "1h2m3s40ms" (any subset, e.g. "00m05s123ms").
func ParseTimestamp(s string) (float64, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return 0, errors.New("empty timestamp")
	}

	if m := unitTimestampRE.FindStringSubmatch(v); m != nil && m[1]+m[2]+m[3]+m[4] != "" {
		var sec float64
		for _, u := range []struct {
			field string
			scale float64
		}{{m[1], 3600}, {m[2], 60}, {m[4], 0.001}} {
			if u.field == "" {
				continue
			}
			n, err := strconv.Atoi(u.field)
			if err != nil {
				return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
			}
			sec += float64(n) * u.scale
		}
		if m[3] != "" {
			f, err := strconv.ParseFloat(m[3], 64)
			if err != nil || math.IsInf(f, 0) {
				return 0, fmt.Errorf("invalid timestamp %q", s)
			}
			sec += f
		}
		return sec, nil
	}

	parts := strings.Split(strings.ReplaceAll(v, ",", "."), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var sec float64
	for i, p := range parts {
		if p == "" {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i < len(parts)-1 {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid timestamp %q", s)
			}
			sec = sec*60 + float64(n)
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		sec = sec*60 + f
	}
	return sec, nil
}
