// Package deepgram provides a Deepgram-backed recognizer using the Deepgram
// streaming WebSocket API. It implements the recognizer.Provider interface.
//
// Karaoke specifics: interim results are always requested (they drive the live
// lyric display), numerals are kept as words, and the active song's lyric
// vocabulary is passed as keyword boosts so sung words come back spelled the
// way the timeline expects them.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/crooner-live/crooner/pkg/recognizer"
	"github.com/crooner-live/crooner/pkg/types"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint URL. Useful for tests and
// self-hosted Deepgram deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithSampleRate sets the provider-level default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements recognizer.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming recognition session with Deepgram. It respects
// cfg.SampleRate, cfg.Language, and cfg.Vocabulary.
func (p *Provider) StartStream(ctx context.Context, cfg recognizer.StreamConfig) (recognizer.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan types.Segment, 64),
		finals:   make(chan types.Segment, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg recognizer.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("interim_results", "true")
	q.Set("punctuate", "false")
	q.Set("numerals", "false")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	for _, hint := range cfg.Vocabulary {
		// Deepgram keyword format: word:boost (e.g., "figgy:3")
		q.Add("keywords", fmt.Sprintf("%s:%g", hint.Word, hint.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// response is the JSON structure returned by Deepgram for a Results event.
type response struct {
	Type    string  `json:"type"`
	IsFinal bool    `json:"is_final"`
	Start   float64 `json:"start"`
	Dur     float64 `json:"duration"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements
// recognizer.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan types.Segment
	finals   chan types.Segment
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	vocabMu    sync.RWMutex
	vocabulary []types.VocabularyHint // stored for reference; Deepgram has no mid-stream updates
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// Partials returns the channel of interim segments.
func (s *session) Partials() <-chan types.Segment { return s.partials }

// Finals returns the channel of final segments.
func (s *session) Finals() <-chan types.Segment { return s.finals }

// SetVocabulary records the new vocabulary list. Deepgram does not support
// mid-stream keyword updates, so this returns recognizer.ErrNotSupported.
func (s *session) SetVocabulary(words []types.VocabularyHint) error {
	s.vocabMu.Lock()
	s.vocabulary = words
	s.vocabMu.Unlock()
	return fmt.Errorf("deepgram: %w", recognizer.ErrNotSupported)
}

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Send a close message to Deepgram to flush pending audio.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain the audio channel before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// partials and finals channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation — exit gracefully.
			return
		}

		seg, ok := parseResponse(msg)
		if !ok {
			continue
		}

		if seg.IsFinal {
			select {
			case s.finals <- seg:
			case <-s.done:
			}
		} else {
			select {
			case s.partials <- seg:
			case <-s.done:
			}
		}
	}
}

// parseResponse parses a raw Deepgram WebSocket message into a Segment.
// Returns (Segment, true) on success, or (zero, false) if the message should
// be ignored.
func parseResponse(data []byte) (types.Segment, bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Segment{}, false
	}
	if resp.Type != "Results" {
		return types.Segment{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return types.Segment{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]types.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, types.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	start := time.Duration(resp.Start * float64(time.Second))
	return types.Segment{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
		Start:      start,
		End:        start + time.Duration(resp.Dur*float64(time.Second)),
	}, true
}
