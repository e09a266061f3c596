// Package mock provides test doubles for the recognizer package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled Segment values and inspect
// which audio chunks were delivered.
//
// Example:
//
//	sess := &mock.Session{
//	    PartialsCh: make(chan types.Segment, 1),
//	    FinalsCh:   make(chan types.Segment, 1),
//	}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/crooner-live/crooner/pkg/recognizer"
	"github.com/crooner-live/crooner/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg recognizer.StreamConfig
}

// Provider is a mock implementation of recognizer.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil,
	// StartStream returns a new default Session with buffered channels.
	Session recognizer.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg recognizer.StreamConfig) (recognizer.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		PartialsCh: make(chan types.Segment, 16),
		FinalsCh:   make(chan types.Segment, 16),
	}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements recognizer.Provider at compile time.
var _ recognizer.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// SetVocabularyCall records a single invocation of Session.SetVocabulary.
type SetVocabularyCall struct {
	// Words is a copy of the hint list passed to SetVocabulary.
	Words []types.VocabularyHint
}

// NewClosedSession returns a Session whose segment channels are already
// closed. A consumer reading from it sees an immediately-ended stream, which
// makes it a safe stand-in when no real recognizer is configured.
func NewClosedSession() *Session {
	partials := make(chan types.Segment)
	finals := make(chan types.Segment)
	close(partials)
	close(finals)
	return &Session{PartialsCh: partials, FinalsCh: finals}
}

// Session is a mock implementation of recognizer.SessionHandle.
// Callers should pre-populate PartialsCh and FinalsCh with the Segment values
// they want the consumer to receive, then close them when done.
type Session struct {
	mu sync.Mutex

	// PartialsCh is the channel returned by Partials(). Callers own this
	// channel and are responsible for sending to and closing it in tests.
	PartialsCh chan types.Segment

	// FinalsCh is the channel returned by Finals(). Callers own this channel.
	FinalsCh chan types.Segment

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SetVocabularyErr, if non-nil, is returned by every SetVocabulary call.
	SetVocabularyErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// SetVocabularyCalls records every call to SetVocabulary in order.
	SetVocabularyCalls []SetVocabularyCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Partials returns PartialsCh. The caller must have initialised PartialsCh
// before calling this method.
func (s *Session) Partials() <-chan types.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PartialsCh
}

// Finals returns FinalsCh.
func (s *Session) Finals() <-chan types.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FinalsCh
}

// SetVocabulary records the call and returns SetVocabularyErr.
func (s *Session) SetVocabulary(words []types.VocabularyHint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := make([]types.VocabularyHint, len(words))
	copy(w, words)
	s.SetVocabularyCalls = append(s.SetVocabularyCalls, SetVocabularyCall{Words: w})
	return s.SetVocabularyErr
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.SetVocabularyCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements recognizer.SessionHandle at compile time.
var _ recognizer.SessionHandle = (*Session)(nil)
