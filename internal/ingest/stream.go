package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/crooner-live/crooner/pkg/recognizer"
	"github.com/crooner-live/crooner/pkg/types"
)

// Observation is one committed, normalized transcript word with the moment it
// was sung, relative to recording start.
type Observation struct {
	// Word is the normalized word (see NormalizeWord). Never empty.
	Word string

	// At is the word's timestamp within the recording.
	At time.Duration

	// Confidence is the recognizer's confidence for this word, or the
	// segment confidence when per-word detail was unavailable.
	Confidence float64
}

// Stream adapts a recognizer session into the aligner's input: a single
// ordered channel of committed Observations plus a live-partial snapshot for
// UI feedback.
//
// Only final segments produce Observations. Partial segments are provisional —
// they update the live snapshot and nothing else, so a later final covering
// the same time range supersedes them without any rollback in the scorer.
type Stream struct {
	obs chan Observation

	mu          sync.RWMutex
	livePartial string
}

// NewStream starts pumping handle's output. The pump stops when the handle's
// channels close or ctx is cancelled; the Observations channel is closed
// either way.
func NewStream(ctx context.Context, handle recognizer.SessionHandle) *Stream {
	s := &Stream{
		obs: make(chan Observation, 256),
	}
	go s.pump(ctx, handle)
	return s
}

// Observations returns the committed token stream, in arrival order. Closed
// when the recognizer session ends.
func (s *Stream) Observations() <-chan Observation { return s.obs }

// LivePartial returns the text of the most recent partial segment. It is a
// display hint only and carries no scoring weight.
func (s *Stream) LivePartial() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.livePartial
}

// pump fans recognizer output into observations until both source channels
// close or ctx is done.
func (s *Stream) pump(ctx context.Context, handle recognizer.SessionHandle) {
	defer close(s.obs)

	partials := handle.Partials()
	finals := handle.Finals()

	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return

		case seg, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.mu.Lock()
			s.livePartial = seg.Text
			s.mu.Unlock()

		case seg, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			// A final supersedes whatever partial was on display.
			s.mu.Lock()
			s.livePartial = ""
			s.mu.Unlock()

			for _, o := range SegmentObservations(seg) {
				select {
				case s.obs <- o:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// SegmentObservations converts one final segment into normalized
// observations. Segments with no pronounceable text produce none. Per-word
// timestamps are taken from the recognizer's word detail when present;
// otherwise words are spread evenly across the segment's span.
func SegmentObservations(seg types.Segment) []Observation {
	if len(seg.Words) > 0 {
		out := make([]Observation, 0, len(seg.Words))
		for _, w := range seg.Words {
			n := NormalizeWord(w.Word)
			if n == "" {
				continue
			}
			out = append(out, Observation{Word: n, At: w.Start, Confidence: w.Confidence})
		}
		return out
	}

	var words []string
	for _, w := range strings.Fields(seg.Text) {
		if n := NormalizeWord(w); n != "" {
			words = append(words, n)
		}
	}
	if len(words) == 0 {
		return nil
	}

	span := seg.End - seg.Start
	step := time.Duration(0)
	if len(words) > 1 && span > 0 {
		step = span / time.Duration(len(words)-1)
	}

	out := make([]Observation, 0, len(words))
	for i, w := range words {
		out = append(out, Observation{
			Word:       w,
			At:         seg.Start + time.Duration(i)*step,
			Confidence: seg.Confidence,
		})
	}
	return out
}
