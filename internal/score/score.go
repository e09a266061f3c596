// Package score assigns similarity values and classifications to matched
// lyric/transcript pairs and aggregates them into a session score.
package score

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/crooner-live/crooner/pkg/types"
)

// Config holds the tunable scoring constants. Thresholds and boost parameters
// are deliberately configuration, not hard-coded: the qualitative bands
// (exact/close/wrong) are stable but the cut-offs get tweaked per deployment.
type Config struct {
	// ExactThreshold is the minimum similarity for an exact classification.
	ExactThreshold float64 `yaml:"exact_threshold"`

	// CloseThreshold is the minimum similarity for a close classification.
	// Matches below it count as wrong.
	CloseThreshold float64 `yaml:"close_threshold"`

	// CloseWeight is the aggregate contribution of a close match. Exact
	// contributes 1.0, wrong and missing contribute nothing.
	CloseWeight float64 `yaml:"close_weight"`

	// VibeWindow is the fractional distance between matched and expected
	// token counts within which the vibe boost applies.
	VibeWindow float64 `yaml:"vibe_window"`

	// VibeFactor is the multiplier applied to the aggregate when the vibe
	// boost condition holds. The boosted score is still capped at 100.
	VibeFactor float64 `yaml:"vibe_factor"`
}

// DefaultConfig returns the stock scoring constants.
func DefaultConfig() Config {
	return Config{
		ExactThreshold: 0.95,
		CloseThreshold: 0.70,
		CloseWeight:    0.5,
		VibeWindow:     0.10,
		VibeFactor:     1.05,
	}
}

// withDefaults fills zero-valued fields so a partially specified config
// behaves sanely.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ExactThreshold <= 0 {
		c.ExactThreshold = d.ExactThreshold
	}
	if c.CloseThreshold <= 0 {
		c.CloseThreshold = d.CloseThreshold
	}
	if c.CloseWeight <= 0 {
		c.CloseWeight = d.CloseWeight
	}
	if c.VibeWindow <= 0 {
		c.VibeWindow = d.VibeWindow
	}
	if c.VibeFactor <= 0 {
		c.VibeFactor = d.VibeFactor
	}
	return c
}

// Similarity measures how close a sung word is to the expected lyric word.
// Both inputs must already be normalized. The measure is prefix-weighted and
// tolerant of adjacent transpositions; 1.0 means an exact match, 0.0 means no
// resemblance (or unusable input).
func Similarity(sung, expected string) float64 {
	if sung == "" || expected == "" {
		return 0
	}
	if sung == expected {
		return 1
	}
	s := matchr.JaroWinkler(sung, expected, false)
	// Contraction expansion can turn either side into a multi-word phrase;
	// a spaceless comparison keeps "gonna"-style pairs from being punished
	// for the inserted blank.
	if strings.ContainsRune(sung, ' ') || strings.ContainsRune(expected, ' ') {
		a := strings.ReplaceAll(sung, " ", "")
		b := strings.ReplaceAll(expected, " ", "")
		if alt := matchr.JaroWinkler(a, b, false); alt > s {
			s = alt
		}
	}
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Event is one live classification decision, emitted as soon as it is made so
// a renderer can color the word without waiting for session end.
type Event struct {
	// Index is the lyric token's position in the timeline.
	Index int

	// Classification is the decision for that token.
	Classification types.Classification

	// Similarity is the recorded similarity; 0 for missing tokens.
	Similarity float64
}

// Entry is the per-token scoring record. Entries are written once and never
// revised.
type Entry struct {
	Classification types.Classification
	Similarity     float64
	Scored         bool
}

// Card accumulates per-token entries for one session. It is owned by the
// session's run loop; it is not safe for concurrent use.
type Card struct {
	cfg     Config
	entries []Entry
}

// NewCard returns a scorecard for a timeline of n tokens.
func NewCard(cfg Config, n int) *Card {
	return &Card{
		cfg:     cfg.withDefaults(),
		entries: make([]Entry, n),
	}
}

// Len returns the number of expected tokens.
func (c *Card) Len() int { return len(c.entries) }

// Record classifies a matched token by its similarity and stores the entry.
// It returns the resulting event. Recording an already scored token is a
// programming error upstream; the first entry wins and a zero event with a
// false second return reports the rejection.
func (c *Card) Record(index int, similarity float64) (Event, bool) {
	if index < 0 || index >= len(c.entries) || c.entries[index].Scored {
		return Event{}, false
	}
	cls := c.classify(similarity)
	c.entries[index] = Entry{Classification: cls, Similarity: similarity, Scored: true}
	return Event{Index: index, Classification: cls, Similarity: similarity}, true
}

// MarkMissing finalizes a token that received no match within its window.
func (c *Card) MarkMissing(index int) (Event, bool) {
	if index < 0 || index >= len(c.entries) || c.entries[index].Scored {
		return Event{}, false
	}
	c.entries[index] = Entry{Classification: types.ClassMissing, Scored: true}
	return Event{Index: index, Classification: types.ClassMissing}, true
}

// FinalizeMissing marks every still-unscored token as missing and returns the
// events in index order. Called once when scoring ends.
func (c *Card) FinalizeMissing() []Event {
	var events []Event
	for i := range c.entries {
		if ev, ok := c.MarkMissing(i); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (c *Card) classify(similarity float64) types.Classification {
	switch {
	case similarity >= c.cfg.ExactThreshold:
		return types.ClassExact
	case similarity >= c.cfg.CloseThreshold:
		return types.ClassClose
	default:
		return types.ClassWrong
	}
}

// Result is the final outcome of a session's scoring.
type Result struct {
	// Aggregate is the session score in [0, 100], vibe boost included.
	Aggregate float64

	// Exact, Close, Wrong and Missing count classifications. Their sum
	// equals the timeline's token count for a completed session.
	Exact   int
	Close   int
	Wrong   int
	Missing int

	// VibeBoosted reports whether the participation bonus applied.
	VibeBoosted bool

	// Entries is the per-token classification sequence, timeline order.
	Entries []Entry
}

// Matched returns how many tokens drew any match at all (exact, close or
// wrong).
func (r Result) Matched() int { return r.Exact + r.Close + r.Wrong }

// Result computes the aggregate over the current entries. Unscored tokens
// count as missing; call FinalizeMissing first for a completed session so the
// entry records agree with the counts.
func (c *Card) Result() Result {
	r := Result{Entries: make([]Entry, len(c.entries))}
	copy(r.Entries, c.entries)

	var sum float64
	for _, e := range c.entries {
		if !e.Scored {
			r.Missing++
			continue
		}
		switch e.Classification {
		case types.ClassExact:
			r.Exact++
			sum += 1.0
		case types.ClassClose:
			r.Close++
			sum += c.cfg.CloseWeight
		case types.ClassWrong:
			r.Wrong++
		case types.ClassMissing:
			r.Missing++
		}
	}

	total := len(c.entries)
	if total == 0 {
		return r
	}
	r.Aggregate = sum / float64(total) * 100

	// Participation bonus: singing roughly the right number of words is
	// rewarded even when individual words were off.
	matched := r.Matched()
	if diff := float64(total - matched); diff/float64(total) <= c.cfg.VibeWindow {
		r.Aggregate *= c.cfg.VibeFactor
		r.VibeBoosted = true
	}
	if r.Aggregate > 100 {
		r.Aggregate = 100
	}
	if r.Aggregate < 0 {
		r.Aggregate = 0
	}
	return r
}
