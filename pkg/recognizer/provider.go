// Package recognizer defines the Provider interface for streaming
// speech-recognition backends.
//
// A recognizer provider wraps a real-time transcription service (e.g.,
// Deepgram or a local Whisper server) and exposes a uniform streaming
// interface. The central abstraction is SessionHandle: once opened, a session
// accepts raw PCM audio frames and emits two streams of Segment values —
// low-latency partials for live feedback and authoritative finals for
// committed scoring.
//
// Implementations must be safe for concurrent use. Audio input and segment
// output channels are goroutine-safe by construction.
package recognizer

import (
	"context"
	"errors"

	"github.com/crooner-live/crooner/pkg/types"
)

// ErrNotSupported is returned by optional SessionHandle operations that the
// underlying provider cannot perform, such as mid-session vocabulary updates.
var ErrNotSupported = errors.New("recognizer: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new
// recognition session. All fields must be compatible with what the underlying
// provider supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// providers). Implementors may downmix internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Vocabulary lists words to boost during recognition. Crooner seeds this
	// with the active song's lyric vocabulary so sung words are transcribed
	// the way the lyrics spell them.
	Vocabulary []types.VocabularyHint
}

// SessionHandle represents an open streaming recognition session. It is an
// interface so that test code can provide mock implementations without a live
// provider connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider. All
// methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes for recognition. The
	// chunk must match the SampleRate, Channels, and bit depth agreed in
	// StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel emitting low-latency interim
	// Segment values. These drive the live lyric display but are never
	// committed to scoring. Closed when the session ends.
	Partials() <-chan types.Segment

	// Finals returns a read-only channel emitting authoritative Segment
	// values once the provider has committed to a result. These are the only
	// segments forwarded to the alignment engine. Closed when the session ends.
	Finals() <-chan types.Segment

	// SetVocabulary replaces the active vocabulary boost list without
	// restarting the session. Providers that do not support mid-session
	// updates return ErrNotSupported; already-buffered audio may still use
	// the previous vocabulary.
	SetVocabulary(words []types.VocabularyHint) error

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. After Close returns, the Partials and Finals
	// channels will be closed. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any streaming recognition backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per active karaoke attempt).
type Provider interface {
	// StartStream opens a new streaming recognition session with the given
	// audio format and recognition configuration. The returned SessionHandle
	// is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session. The
	// caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
