package lyrics

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Line is one lyric line, optionally carrying an LRC timestamp.
type Line struct {
	// At is the line's start time relative to song start. Meaningful only
	// when Timed is true.
	At time.Duration

	// Timed reports whether At was parsed from the source text.
	Timed bool

	// Text is the lyric text with any timestamp tag stripped.
	Text string
}

// lrcTag matches an LRC line-level timestamp such as [00:14.00] or [01:02.500].
var lrcTag = regexp.MustCompile(`^\[(\d{2}):(\d{2})\.(\d{2,3})\](.*)$`)

// ParseLRC parses LRC-format lyric text into lines. Lines with a valid
// timestamp tag come back timed; plain lines come back untimed. Empty lines
// and tag-only lines are dropped.
func ParseLRC(text string) []Line {
	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		m := lrcTag.FindStringSubmatch(raw)
		if m == nil {
			lines = append(lines, Line{Text: raw})
			continue
		}

		body := strings.TrimSpace(m[4])
		if body == "" {
			continue
		}

		mins, _ := strconv.Atoi(m[1])
		secs, _ := strconv.Atoi(m[2])
		frac, _ := strconv.ParseFloat("0."+m[3], 64)
		at := time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(frac*float64(time.Second))

		lines = append(lines, Line{At: at, Timed: true, Text: body})
	}
	return lines
}

// SplitPlain splits plain lyric text into untimed lines, dropping blanks.
func SplitPlain(text string) []Line {
	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lines = append(lines, Line{Text: raw})
	}
	return lines
}
