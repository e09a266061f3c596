// Package lyrics builds the time-indexed token timeline that a karaoke
// session is scored against.
//
// A Timeline is an ordered sequence of Tokens, each carrying the raw lyric
// word, its normalized comparison form, and the moment it is expected to be
// sung. Timelines are immutable once built: a session holds one for its whole
// lifetime and the aligner only ever reads it.
//
// Timing comes in three qualities. Word-level timings from a lyric-sync
// source are used directly (scaled proportionally when their span disagrees
// with the actual audio duration). Line-level timings (LRC) get word slots
// interpolated within each line, weighted by word length so long words hold
// the highlight longer. When no timing exists at all, lines are spread evenly
// across the track and the timeline is marked as fallback.
package lyrics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crooner-live/crooner/internal/ingest"
)

// ErrEmptyLyrics is returned by Build when the lyric text contains no words.
// Callers that want the session to proceed anyway should fall back to
// Empty, which always scores zero.
var ErrEmptyLyrics = errors.New("lyrics: no lyric text")

// spanTolerance is the maximum relative divergence between the timing span
// and the audio duration before timestamps are rescaled to fit.
const spanTolerance = 0.10

// Per-line slot synthesis constants, applied when only line-level timing is
// available. A line is assumed to take 0.15s per character of text plus a
// second of slack, never more than the gap to the next line.
const (
	perCharSeconds   = 0.15
	lineSlack        = 1 * time.Second
	lastLineDuration = 4 * time.Second
)

// Source records how a Timeline's word timestamps were obtained.
type Source int

const (
	// SourcePrecise means timing came from a lyric-sync source (word-level,
	// or line-level with interpolated word slots).
	SourcePrecise Source = iota

	// SourceFallback means no timing was available and the timeline was
	// synthesized by spreading lines evenly across the track duration.
	SourceFallback
)

// String returns the lowercase name of the source.
func (s Source) String() string {
	if s == SourceFallback {
		return "fallback"
	}
	return "precise"
}

// Token is a single time-stamped word unit from the song's lyrics.
type Token struct {
	// Text is the raw lyric word as written.
	Text string

	// Normalized is the comparison form: lowercased, punctuation-stripped,
	// contractions expanded. May contain a space when an expansion produces
	// multiple words ("gonna" → "going to").
	Normalized string

	// Line is the zero-based lyric line this token belongs to.
	Line int

	// Index is the global token position, strictly increasing across the
	// whole timeline.
	Index int

	// Start is when the word is expected to be sung, relative to song start.
	Start time.Duration

	// End is when the word's slot ends. Zero when unknown.
	End time.Duration
}

// Timeline is the ordered, time-indexed token sequence for one song.
type Timeline struct {
	Tokens        []Token
	TotalDuration time.Duration

	// StartOffset is the timestamp of the first non-empty lyric line — the
	// first vocal onset, used to support skipping the intro.
	StartOffset time.Duration

	Source Source
}

// Empty returns a degenerate zero-token timeline. Sessions built on it
// complete normally and always score zero.
func Empty(total time.Duration) *Timeline {
	return &Timeline{TotalDuration: total, Source: SourceFallback}
}

// Len returns the number of tokens in the timeline.
func (t *Timeline) Len() int { return len(t.Tokens) }

// Vocabulary returns the deduplicated set of raw lyric words, in first-seen
// order. Fed to the recognizer as vocabulary boost hints.
func (t *Timeline) Vocabulary() []string {
	seen := make(map[string]struct{}, len(t.Tokens))
	var words []string
	for _, tok := range t.Tokens {
		w := strings.ToLower(tok.Text)
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, tok.Text)
	}
	return words
}

// TokenAt returns the index of the first token whose Start is at or after ts.
// Returns Len() when every token starts before ts.
func (t *Timeline) TokenAt(ts time.Duration) int {
	for i, tok := range t.Tokens {
		if tok.Start >= ts {
			return i
		}
	}
	return len(t.Tokens)
}

// WordTiming is one word-level timestamp from a lyric-sync source.
type WordTiming struct {
	Word  string
	Start time.Duration
	End   time.Duration
}

// BuildInput carries everything the builder needs for one song.
type BuildInput struct {
	// Lines is the lyric text split into lines, optionally line-timed.
	// Use ParseLRC or SplitPlain to produce it.
	Lines []Line

	// Words optionally carries word-level timing covering the whole lyric.
	// When present it takes precedence over line timing.
	Words []WordTiming

	// TotalDuration is the audio track length, from the catalog metadata.
	TotalDuration time.Duration
}

// Build constructs a Timeline from in. It returns ErrEmptyLyrics when the
// input contains no lyric words at all.
//
// Timing selection, in order of preference:
//  1. Word-level timings — used directly when their span is within 10% of
//     TotalDuration, otherwise scaled proportionally to fit.
//  2. Line-level timings — word slots interpolated within each line,
//     weighted by word length.
//  3. No timing — lines distributed evenly across TotalDuration, tokens
//     evenly within each line's slice (Source = SourceFallback).
func Build(in BuildInput) (*Timeline, error) {
	if len(in.Words) > 0 {
		return buildFromWords(in)
	}

	lines := nonEmptyLines(in.Lines)
	if len(lines) == 0 {
		return nil, ErrEmptyLyrics
	}

	if linesTimed(lines) {
		return buildFromTimedLines(lines, in.TotalDuration), nil
	}
	return buildEven(lines, in.TotalDuration), nil
}

// buildFromWords builds a precise timeline directly from word timings,
// rescaling when the timing span disagrees with the track duration.
func buildFromWords(in BuildInput) (*Timeline, error) {
	words := in.Words
	span := words[len(words)-1].End
	if span == 0 {
		span = words[len(words)-1].Start
	}

	scale := 1.0
	if in.TotalDuration > 0 && span > 0 {
		diff := (span - in.TotalDuration).Abs()
		if float64(diff) > spanTolerance*float64(in.TotalDuration) {
			scale = float64(in.TotalDuration) / float64(span)
		}
	}

	tokens := make([]Token, 0, len(words))
	line := 0
	var prevEnd time.Duration
	for i, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		start := time.Duration(float64(w.Start) * scale)
		end := time.Duration(float64(w.End) * scale)
		// A visible gap between words marks a line break in word-only input.
		if i > 0 && start-prevEnd > 2*time.Second {
			line++
		}
		prevEnd = end
		tokens = append(tokens, Token{
			Text:       text,
			Normalized: ingest.NormalizeWord(text),
			Line:       line,
			Index:      len(tokens),
			Start:      start,
			End:        end,
		})
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyLyrics
	}

	return &Timeline{
		Tokens:        tokens,
		TotalDuration: in.TotalDuration,
		StartOffset:   tokens[0].Start,
		Source:        SourcePrecise,
	}, nil
}

// buildFromTimedLines synthesizes word slots inside each line-timed lyric
// line. The slot distribution is weighted by word length so short words pass
// quickly and long words linger.
func buildFromTimedLines(lines []Line, total time.Duration) *Timeline {
	var tokens []Token
	for i, ln := range lines {
		words := strings.Fields(ln.Text)
		if len(words) == 0 {
			continue
		}

		gap := lastLineDuration
		if i < len(lines)-1 {
			gap = lines[i+1].At - ln.At
		}
		estimated := time.Duration(float64(len(ln.Text))*perCharSeconds*float64(time.Second)) + lineSlack
		lineDur := gap
		if estimated < lineDur {
			lineDur = estimated
		}
		if lineDur < 0 {
			lineDur = 0
		}

		weights, totalWeight := wordWeights(words)
		perUnit := float64(lineDur) / totalWeight

		cursor := ln.At
		for wi, w := range words {
			slot := time.Duration(weights[wi] * perUnit)
			tokens = append(tokens, Token{
				Text:       w,
				Normalized: ingest.NormalizeWord(w),
				Line:       i,
				Index:      len(tokens),
				Start:      cursor,
				End:        cursor + slot,
			})
			cursor += slot
		}
	}

	tl := &Timeline{
		Tokens:        tokens,
		TotalDuration: total,
		Source:        SourcePrecise,
	}
	if len(tokens) > 0 {
		tl.StartOffset = lines[0].At
	}
	return tl
}

// buildEven synthesizes fallback timing: each line gets an equal slice of the
// track, and each word an equal slice of its line.
func buildEven(lines []Line, total time.Duration) *Timeline {
	lineDur := total / time.Duration(len(lines))

	var tokens []Token
	for i, ln := range lines {
		words := strings.Fields(ln.Text)
		if len(words) == 0 {
			continue
		}
		lineStart := time.Duration(i) * lineDur
		slot := lineDur / time.Duration(len(words))
		for wi, w := range words {
			start := lineStart + time.Duration(wi)*slot
			tokens = append(tokens, Token{
				Text:       w,
				Normalized: ingest.NormalizeWord(w),
				Line:       i,
				Index:      len(tokens),
				Start:      start,
				End:        start + slot,
			})
		}
	}

	return &Timeline{
		Tokens:        tokens,
		TotalDuration: total,
		StartOffset:   0,
		Source:        SourceFallback,
	}
}

// wordWeights assigns a relative duration weight to each word based on its
// length. Two-letter words get 60% of their length, short words 90%, and long
// words 120% — matching how singers actually hold them.
func wordWeights(words []string) (weights []float64, total float64) {
	weights = make([]float64, len(words))
	for i, w := range words {
		n := len(w)
		weight := float64(n)
		switch {
		case n <= 2:
			weight *= 0.6
		case n <= 4:
			weight *= 0.9
		case n >= 8:
			weight *= 1.2
		}
		weights[i] = weight
		total += weight
	}
	if total == 0 {
		total = 1
	}
	return weights, total
}

// nonEmptyLines filters out lines with no words.
func nonEmptyLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, ln := range lines {
		if strings.TrimSpace(ln.Text) != "" {
			out = append(out, ln)
		}
	}
	return out
}

// linesTimed reports whether every line carries a timestamp.
func linesTimed(lines []Line) bool {
	for _, ln := range lines {
		if !ln.Timed {
			return false
		}
	}
	return len(lines) > 0
}

// Validate checks the timeline's structural invariants: strictly increasing
// token indices and non-decreasing start times. Intended for tests and
// catalog loading diagnostics.
func (t *Timeline) Validate() error {
	var prev Token
	for i, tok := range t.Tokens {
		if tok.Index != i {
			return fmt.Errorf("lyrics: token %d has index %d", i, tok.Index)
		}
		if i > 0 && tok.Start < prev.Start {
			return fmt.Errorf("lyrics: token %d starts at %s before token %d at %s",
				i, tok.Start, i-1, prev.Start)
		}
		prev = tok
	}
	return nil
}
