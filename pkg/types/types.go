// Package types defines the shared types used across all Crooner packages.
//
// These types form the lingua franca between the recognizer providers, the
// ingest/alignment pipeline, and the session engine. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Segment represents a speech-recognition result delivered by a recognizer
// provider. Both partial (interim) and final segments use this type.
type Segment struct {
	// Text is the recognized speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) recognition result. Only final segments feed committed scoring.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word timing detail when the provider supports it.
	// May be nil.
	Words []WordDetail

	// Start marks when the utterance started, relative to recording start.
	Start time.Duration

	// End marks when the utterance ended, relative to recording start.
	End time.Duration
}

// WordDetail holds per-word metadata from recognizers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// VocabularyHint is a word the recognizer should prefer during recognition.
// Crooner feeds the active song's lyric vocabulary to the recognizer so that
// sung words are more likely to be transcribed as written in the lyrics.
type VocabularyHint struct {
	// Word is the text to boost (e.g., "figgy").
	Word string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Classification is the per-token verdict assigned by the scorer.
type Classification int

const (
	// ClassExact marks a token whose sung word matched the lyric exactly
	// after normalization.
	ClassExact Classification = iota

	// ClassClose marks a near-miss: recognizably the right word, imperfectly
	// sung or transcribed.
	ClassClose

	// ClassWrong marks a token that was matched to a transcript word but with
	// similarity below the close threshold.
	ClassWrong

	// ClassMissing marks a token that received no match before its tolerance
	// window expired.
	ClassMissing
)

// String returns the lowercase name of the classification.
func (c Classification) String() string {
	switch c {
	case ClassExact:
		return "exact"
	case ClassClose:
		return "close"
	case ClassWrong:
		return "wrong"
	case ClassMissing:
		return "missing"
	default:
		return "unknown"
	}
}
