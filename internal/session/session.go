// Package session drives one recording attempt through its lifecycle:
// countdown, recording, scoring, completion. Each attempt owns its own
// alignment state and scorecard; nothing is shared across sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crooner-live/crooner/internal/align"
	"github.com/crooner-live/crooner/internal/ingest"
	"github.com/crooner-live/crooner/internal/leaderboard"
	"github.com/crooner-live/crooner/internal/lyrics"
	"github.com/crooner-live/crooner/internal/observe"
	"github.com/crooner-live/crooner/internal/score"
	"github.com/crooner-live/crooner/pkg/recognizer"
	"github.com/crooner-live/crooner/pkg/types"
)

// State is a session's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateCountdown
	StateRecording
	StateScoring
	StateComplete
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCountdown:
		return "countdown"
	case StateRecording:
		return "recording"
	case StateScoring:
		return "scoring"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind discriminates the entries of a session's event stream.
type EventKind int

const (
	// KindState marks a lifecycle transition.
	KindState EventKind = iota

	// KindWord marks a live per-word classification.
	KindWord
)

// Event is one entry of a session's event stream. The stream is finite,
// non-restartable and closed when the session completes or is cancelled.
type Event struct {
	Kind EventKind

	// State is set for KindState events.
	State State

	// At is when the event was produced.
	At time.Time

	// Word is set for KindWord events.
	Word score.Event
}

// Result is the final outcome of a completed session.
type Result struct {
	Score    score.Result
	Duration time.Duration
}

// Presets are the selectable recording duration limits. Zero means full-song
// mode, which ends at the timeline's total duration.
var Presets = []time.Duration{
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
	0,
}

// ValidPreset reports whether d is a selectable duration limit.
func ValidPreset(d time.Duration) bool {
	for _, p := range Presets {
		if d == p {
			return true
		}
	}
	return false
}

const defaultCountdown = 3 * time.Second

// expiryInterval is how often the recording clock sweeps for tokens whose
// window has passed without a match.
const expiryInterval = 500 * time.Millisecond

var (
	// ErrNotIdle is returned by Start when the session already ran.
	ErrNotIdle = errors.New("session: not idle")

	// ErrCancelled is returned by Wait for a cancelled session.
	ErrCancelled = errors.New("session: cancelled")

	// ErrBadPreset is returned for a duration outside the preset list.
	ErrBadPreset = errors.New("session: invalid duration preset")
)

// Options configures a session.
type Options struct {
	// PlayerName and SongID identify the attempt on the leaderboard.
	PlayerName string
	SongID     string

	// Timeline is the song's lyric timeline. An empty timeline is valid:
	// the session runs and completes with a zero score.
	Timeline *lyrics.Timeline

	// Recognizer supplies the transcript stream during recording.
	Recognizer recognizer.Provider

	// StreamConfig is passed to the recognizer when recording starts. Its
	// Vocabulary is filled from the timeline when empty.
	StreamConfig recognizer.StreamConfig

	// Leaderboard receives the final entry on completion. Nil disables
	// submission (practice mode).
	Leaderboard leaderboard.Store

	// Align and Score tune the matching engine. Zero values mean defaults.
	Align align.Config
	Score score.Config

	// Countdown is the pre-roll length. Zero means the 3s default.
	Countdown time.Duration

	// Duration is the recording limit, one of Presets. Zero means
	// full-song mode.
	Duration time.Duration

	// SkipIntro starts alignment at the first vocal onset instead of the
	// top of the track.
	SkipIntro bool

	// Logger receives diagnostics. Nil means slog.Default.
	Logger *slog.Logger

	// Metrics receives instrumentation. Nil means the package default.
	Metrics *observe.Metrics

	// ProviderName labels recognizer metrics.
	ProviderName string
}

// Session is one recording attempt. Create with New, drive with Start, and
// consume Events until the channel closes.
type Session struct {
	opts   Options
	logger *slog.Logger

	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	state     State
	started   bool
	skipIntro bool
	duration  time.Duration
	card      *score.Card
	aligner   *align.Aligner
	result    *Result
	cancel    context.CancelFunc
}

// New builds an idle session. It fails when the duration is not a preset.
func New(opts Options) (*Session, error) {
	if opts.Timeline == nil {
		return nil, errors.New("session: timeline is required")
	}
	if opts.Recognizer == nil {
		return nil, errors.New("session: recognizer is required")
	}
	if !ValidPreset(opts.Duration) {
		return nil, fmt.Errorf("%w: %s", ErrBadPreset, opts.Duration)
	}
	if opts.Countdown <= 0 {
		opts.Countdown = defaultCountdown
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	if len(opts.StreamConfig.Vocabulary) == 0 {
		opts.StreamConfig.Vocabulary = vocabularyHints(opts.Timeline)
	}

	s := &Session{
		opts:      opts,
		logger:    opts.Logger.With("song_id", opts.SongID, "player", opts.PlayerName),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		state:     StateIdle,
		skipIntro: opts.SkipIntro,
		duration:  opts.Duration,
	}
	s.rebuildAligner(0)
	return s, nil
}

// vocabularyBoost is the keyword weight applied to every lyric word fed to
// the recognizer.
const vocabularyBoost = 2

// vocabularyHints turns the timeline's word set into recognizer boost hints.
func vocabularyHints(tl *lyrics.Timeline) []types.VocabularyHint {
	words := tl.Vocabulary()
	hints := make([]types.VocabularyHint, len(words))
	for i, w := range words {
		hints[i] = types.VocabularyHint{Word: w, Boost: vocabularyBoost}
	}
	return hints
}

// rebuildAligner resets the scorecard and aligner for the current skip-intro
// choice, carrying over the manual sync offset. Caller holds s.mu or has
// exclusive access.
func (s *Session) rebuildAligner(offset time.Duration) {
	start := 0
	if s.skipIntro {
		start = s.startIndex()
	}
	s.card = score.NewCard(s.opts.Score, s.opts.Timeline.Len())
	s.aligner = align.New(s.opts.Align, s.opts.Timeline, s.card, start)

	dir := 1
	if offset < 0 {
		dir = -1
	}
	prev := time.Duration(0)
	for cur := time.Duration(0); cur != offset; {
		cur = s.aligner.AdjustOffset(dir)
		if cur == prev { // clamped before reaching the target
			break
		}
		prev = cur
	}
}

// startIndex is the index of the first token at or after the vocal onset.
func (s *Session) startIndex() int {
	tl := s.opts.Timeline
	return tl.TokenAt(tl.StartOffset)
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the session's event stream. It is closed when the session
// completes or is cancelled.
func (s *Session) Events() <-chan Event { return s.events }

// Result returns the final result once the session is complete.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Wait blocks until the session ends. It returns ErrCancelled when the
// session was cancelled rather than completed.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, ErrCancelled
	}
	return *s.result, nil
}

// SetSkipIntro toggles skip-intro. Accepted only while idle; a no-op once the
// countdown has begun.
func (s *Session) SetSkipIntro(skip bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle || s.skipIntro == skip {
		return
	}
	s.skipIntro = skip
	s.rebuildAligner(s.aligner.Snapshot().SyncOffset)
}

// SetDuration selects a recording duration preset. Accepted only while idle.
func (s *Session) SetDuration(d time.Duration) error {
	if !ValidPreset(d) {
		return fmt.Errorf("%w: %s", ErrBadPreset, d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrNotIdle
	}
	s.duration = d
	return nil
}

// AdjustSync nudges the sync offset one step in the given direction and
// returns the resulting offset. Accepted during pre-roll and recording;
// anywhere else it is a no-op that reports the current offset. The change
// never lands inside a match decision and never touches finalized entries.
func (s *Session) AdjustSync(direction int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StateRecording {
		return s.aligner.Snapshot().SyncOffset
	}
	return s.aligner.AdjustOffset(direction)
}

// SyncOffset returns the current manual timing correction.
func (s *Session) SyncOffset() time.Duration {
	s.mu.Lock()
	a := s.aligner
	s.mu.Unlock()
	return a.Snapshot().SyncOffset
}

// Start begins the countdown and launches the session's run loop. A session
// runs at most once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Cancel aborts the session from any state. Partial score entries are
// discarded and nothing is written to the leaderboard. Cancelling an idle,
// unstarted session just marks it finished.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	if !started {
		s.started = true
		s.state = StateIdle
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		return
	}
	if !started {
		close(s.events)
		close(s.done)
	}
}

// run is the session's single-writer loop. All state transitions and all
// pointer advancement happen here.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	s.transition(StateCountdown)
	countdown := time.NewTimer(s.opts.Countdown)
	defer countdown.Stop()

	select {
	case <-ctx.Done():
		s.abort()
		return
	case <-countdown.C:
	}

	handle, err := s.opts.Recognizer.StartStream(ctx, s.opts.StreamConfig)
	if err != nil {
		s.logger.Error("recognizer stream failed, scoring empty session", "error", err)
		s.opts.Metrics.RecordRecognizerError(ctx, s.opts.ProviderName)
		s.transition(StateScoring)
		s.finish(0)
		return
	}
	defer handle.Close()

	stream := ingest.NewStream(ctx, handle)
	s.transition(StateRecording)
	recStart := time.Now()

	// base maps observation timestamps (relative to recording start) into
	// the song's time domain.
	var base time.Duration
	s.mu.Lock()
	if s.skipIntro {
		base = s.opts.Timeline.StartOffset
	}
	aligner := s.aligner
	s.mu.Unlock()

	limit := s.recordingLimit(base)
	limitTimer := time.NewTimer(limit)
	defer limitTimer.Stop()

	expiry := time.NewTicker(expiryInterval)
	defer expiry.Stop()

	obs := stream.Observations()

recording:
	for {
		select {
		case <-ctx.Done():
			s.abort()
			return

		case <-limitTimer.C:
			break recording

		case <-expiry.C:
			clock := time.Since(recStart) + base
			s.emitWords(aligner.Tick(clock))

		case o, ok := <-obs:
			if !ok {
				// Recognizer ended early; keep the clock running
				// so remaining tokens expire on schedule.
				obs = nil
				continue
			}
			if lag := time.Since(recStart) - o.At; lag > 0 {
				s.opts.Metrics.RecognizerLatency.Record(ctx, lag.Seconds())
			}
			o.At += base
			s.emitWords(aligner.Observe(o))
		}
	}

	s.transition(StateScoring)
	handle.Close()

	// Drain whatever the recognizer committed before the cut.
	if obs != nil {
		for o := range obs {
			o.At += base
			s.emitWords(aligner.Observe(o))
		}
	}
	s.emitWords(aligner.Finalize())
	s.finish(time.Since(recStart))
}

// recordingLimit is the wall-clock duration of the recording phase.
func (s *Session) recordingLimit(base time.Duration) time.Duration {
	s.mu.Lock()
	d := s.duration
	s.mu.Unlock()
	if d > 0 {
		return d
	}
	full := s.opts.Timeline.TotalDuration - base
	if full <= 0 {
		full = time.Second
	}
	return full
}

// finish computes the result, submits the leaderboard entry and transitions
// to Complete.
func (s *Session) finish(elapsed time.Duration) {
	s.mu.Lock()
	card := s.card
	s.mu.Unlock()

	res := Result{Score: card.Result(), Duration: elapsed}

	s.mu.Lock()
	s.result = &res
	s.mu.Unlock()

	if s.opts.Leaderboard != nil && s.opts.PlayerName != "" {
		entry := leaderboard.Entry{
			PlayerName:  s.opts.PlayerName,
			SongID:      s.opts.SongID,
			Score:       res.Score.Aggregate,
			SubmittedAt: time.Now().UTC(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.opts.Leaderboard.Submit(ctx, entry); err != nil {
			s.logger.Error("leaderboard submit failed", "error", err)
			s.opts.Metrics.RecordLeaderboardWrite(ctx, "error")
		} else {
			s.opts.Metrics.RecordLeaderboardWrite(ctx, "ok")
		}
		cancel()
	}

	s.logger.Info("session complete",
		"score", res.Score.Aggregate,
		"exact", res.Score.Exact,
		"close", res.Score.Close,
		"wrong", res.Score.Wrong,
		"missing", res.Score.Missing,
		"vibe_boost", res.Score.VibeBoosted,
		"duration", elapsed)
	s.transition(StateComplete)
}

// abort returns the session to idle, discarding all partial state. No
// leaderboard write happens.
func (s *Session) abort() {
	s.logger.Info("session cancelled")
	s.transition(StateIdle)
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
	s.emit(Event{Kind: KindState, State: to, At: time.Now()})
}

func (s *Session) emitWords(events []score.Event) {
	for _, ev := range events {
		s.emit(Event{Kind: KindWord, Word: ev, At: time.Now()})
	}
}

// emit delivers without blocking the run loop; a consumer that stops reading
// loses events rather than stalling the session clock.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event stream full, dropping event", "kind", ev.Kind)
	}
}
