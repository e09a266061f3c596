// Package align matches the incoming transcript word stream against a lyric
// timeline, one token at a time, in strict timeline order.
package align

import (
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/crooner-live/crooner/internal/ingest"
	"github.com/crooner-live/crooner/internal/lyrics"
	"github.com/crooner-live/crooner/internal/score"
)

// Config holds the aligner's tunables.
type Config struct {
	// ToleranceWindow is how many tokens ahead of the pointer a transcript
	// word may match.
	ToleranceWindow int `yaml:"tolerance_window"`

	// TextWeight and TimeWeight combine text similarity and temporal
	// proximity into the candidate score. They should sum to 1.
	TextWeight float64 `yaml:"text_weight"`
	TimeWeight float64 `yaml:"time_weight"`

	// MinSimilarity is the text-similarity floor below which a transcript
	// word is treated as recognition noise and discarded.
	MinSimilarity float64 `yaml:"min_similarity"`

	// ProximityScale is the time distance at which temporal proximity
	// decays to zero.
	ProximityScale time.Duration `yaml:"proximity_scale"`

	// ExpirySlack is how long past a token's end time the clock may run
	// before an unmatched token is finalized as missing.
	ExpirySlack time.Duration `yaml:"expiry_slack"`

	// OffsetStep is the fixed increment for manual sync adjustment.
	OffsetStep time.Duration `yaml:"offset_step"`

	// MaxOffset clamps the sync offset to [-MaxOffset, +MaxOffset].
	MaxOffset time.Duration `yaml:"max_offset"`
}

// DefaultConfig returns the stock aligner tunables.
func DefaultConfig() Config {
	return Config{
		ToleranceWindow: 4,
		TextWeight:      0.75,
		TimeWeight:      0.25,
		MinSimilarity:   0.55,
		ProximityScale:  4 * time.Second,
		ExpirySlack:     2 * time.Second,
		OffsetStep:      500 * time.Millisecond,
		MaxOffset:       5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ToleranceWindow <= 0 {
		c.ToleranceWindow = d.ToleranceWindow
	}
	if c.TextWeight <= 0 {
		c.TextWeight = d.TextWeight
	}
	if c.TimeWeight <= 0 {
		c.TimeWeight = d.TimeWeight
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = d.MinSimilarity
	}
	if c.ProximityScale <= 0 {
		c.ProximityScale = d.ProximityScale
	}
	if c.ExpirySlack <= 0 {
		c.ExpirySlack = d.ExpirySlack
	}
	if c.OffsetStep <= 0 {
		c.OffsetStep = d.OffsetStep
	}
	if c.MaxOffset <= 0 {
		c.MaxOffset = d.MaxOffset
	}
	return c
}

// Snapshot is a consistent read of the aligner's mutable state.
type Snapshot struct {
	// Pointer is the index of the first unscored token. It never moves
	// backwards.
	Pointer int

	// SyncOffset is the current manual timing correction.
	SyncOffset time.Duration

	// Scored is how many tokens have a final classification.
	Scored int
}

// Aligner owns the streaming pointer for one recording attempt. Matching and
// offset adjustment are serialized; concurrent Snapshot reads are safe.
// Aligners are single-use and never shared across sessions.
type Aligner struct {
	cfg      Config
	timeline *lyrics.Timeline
	card     *score.Card

	mu         sync.Mutex
	pointer    int
	scored     int
	syncOffset time.Duration
}

// New builds an aligner over timeline, recording decisions on card. The
// pointer starts at startIndex (zero for the top of the song, or the first
// token at or after the vocal onset when the intro is skipped).
func New(cfg Config, timeline *lyrics.Timeline, card *score.Card, startIndex int) *Aligner {
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex > timeline.Len() {
		startIndex = timeline.Len()
	}
	a := &Aligner{
		cfg:      cfg.withDefaults(),
		timeline: timeline,
		card:     card,
		pointer:  startIndex,
	}
	// Tokens before the start index are out of play for this attempt.
	for i := 0; i < startIndex; i++ {
		a.card.MarkMissing(i)
		a.scored++
	}
	return a
}

// Snapshot returns a consistent view of the pointer and offset.
func (a *Aligner) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{Pointer: a.pointer, SyncOffset: a.syncOffset, Scored: a.scored}
}

// AdjustOffset nudges the sync offset by one fixed step in the given
// direction (negative, zero or positive) and returns the clamped result.
// The adjustment lands between matching steps, never inside one.
func (a *Aligner) AdjustOffset(direction int) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case direction > 0:
		a.syncOffset += a.cfg.OffsetStep
	case direction < 0:
		a.syncOffset -= a.cfg.OffsetStep
	}
	if a.syncOffset > a.cfg.MaxOffset {
		a.syncOffset = a.cfg.MaxOffset
	}
	if a.syncOffset < -a.cfg.MaxOffset {
		a.syncOffset = -a.cfg.MaxOffset
	}
	return a.syncOffset
}

// Observe processes one transcript word. If a lyric token within the
// tolerance window matches well enough, it is scored and the pointer advances
// past it; skipped-over tokens are finalized as missing, since timeline order
// forbids matching them later. A word with no acceptable candidate is dropped
// as noise and the pointer stays put. All classification decisions made by
// the call are returned in index order.
func (a *Aligner) Observe(obs ingest.Observation) []score.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	if obs.Word == "" || a.pointer >= a.timeline.Len() {
		return nil
	}

	best, bestSim := a.bestCandidate(obs)
	if best < 0 || bestSim < a.cfg.MinSimilarity {
		return nil
	}

	var events []score.Event
	for i := a.pointer; i < best; i++ {
		if ev, ok := a.card.MarkMissing(i); ok {
			a.scored++
			events = append(events, ev)
		}
	}
	if ev, ok := a.card.Record(best, bestSim); ok {
		a.scored++
		events = append(events, ev)
	}
	a.pointer = best + 1
	return events
}

// bestCandidate scans the tolerance window and returns the winning token
// index and its text similarity, or (-1, 0) when the window is empty.
func (a *Aligner) bestCandidate(obs ingest.Observation) (int, float64) {
	end := a.pointer + a.cfg.ToleranceWindow
	if end >= a.timeline.Len() {
		end = a.timeline.Len() - 1
	}

	obsPrimary, obsSecondary := matchr.DoubleMetaphone(obs.Word)

	best := -1
	bestSim := 0.0
	bestCombined := -1.0
	bestPhonetic := false
	for i := a.pointer; i <= end; i++ {
		tok := a.timeline.Tokens[i]
		sim := score.Similarity(obs.Word, tok.Normalized)
		combined := a.cfg.TextWeight*sim + a.cfg.TimeWeight*a.proximity(tok, obs.At)

		// Near ties go to the candidate that also sounds like what
		// was sung; the recorded similarity stays purely textual.
		phonetic := phoneticMatch(tok.Normalized, obsPrimary, obsSecondary)
		better := combined > bestCombined+0.01 ||
			(combined > bestCombined-0.01 && phonetic && !bestPhonetic)
		if better {
			best = i
			bestSim = sim
			bestCombined = combined
			bestPhonetic = phonetic
		}
	}
	return best, bestSim
}

// proximity maps the distance between a token's expected time and the
// observed timestamp to [0, 1], with 1 at a perfect hit.
func (a *Aligner) proximity(tok lyrics.Token, at time.Duration) float64 {
	expected := tok.Start + a.syncOffset
	dist := expected - at
	if dist < 0 {
		dist = -dist
	}
	if dist >= a.cfg.ProximityScale {
		return 0
	}
	return 1 - float64(dist)/float64(a.cfg.ProximityScale)
}

func phoneticMatch(word, primary, secondary string) bool {
	if primary == "" && secondary == "" {
		return false
	}
	p, s := matchr.DoubleMetaphone(word)
	return (p != "" && (p == primary || p == secondary)) ||
		(s != "" && (s == primary || s == secondary))
}

// Tick finalizes tokens whose tolerance window the session clock has passed
// without a match, advancing the pointer over them. It returns the missing
// events in index order.
func (a *Aligner) Tick(clock time.Duration) []score.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	var events []score.Event
	for a.pointer < a.timeline.Len() {
		tok := a.timeline.Tokens[a.pointer]
		if tok.End+a.syncOffset+a.cfg.ExpirySlack > clock {
			break
		}
		if ev, ok := a.card.MarkMissing(a.pointer); ok {
			a.scored++
			events = append(events, ev)
		}
		a.pointer++
	}
	return events
}

// Finalize marks everything still unscored as missing and returns the events.
// Called once when the session moves into its scoring phase.
func (a *Aligner) Finalize() []score.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	events := a.card.FinalizeMissing()
	a.scored += len(events)
	a.pointer = a.timeline.Len()
	return events
}
