package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crooner-live/crooner/internal/leaderboard"
	"github.com/crooner-live/crooner/internal/lyrics"
	"github.com/crooner-live/crooner/internal/session"
	"github.com/crooner-live/crooner/pkg/recognizer/mock"
	"github.com/crooner-live/crooner/pkg/types"
)

// shortTimeline builds a one-line timeline whose tokens fit in a second, so
// full-song sessions complete quickly.
func shortTimeline(t *testing.T) *lyrics.Timeline {
	t.Helper()
	tl, err := lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.SplitPlain("hello world\n"),
		TotalDuration: time.Second,
	})
	if err != nil {
		t.Fatalf("building timeline: %v", err)
	}
	return tl
}

// finalsSession returns a mock recognizer session pre-loaded with one final
// segment carrying the given word detail, channels already closed.
func finalsSession(words ...types.WordDetail) *mock.Session {
	sess := &mock.Session{
		PartialsCh: make(chan types.Segment, 1),
		FinalsCh:   make(chan types.Segment, 1),
	}
	if len(words) > 0 {
		sess.FinalsCh <- types.Segment{IsFinal: true, Words: words}
	}
	close(sess.FinalsCh)
	close(sess.PartialsCh)
	return sess
}

func waitResult(t *testing.T, s *session.Session) session.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return res
}

func TestSession_FullLifecycle(t *testing.T) {
	t.Parallel()
	board := leaderboard.NewMemoryStore()
	rec := &mock.Provider{Session: finalsSession(
		types.WordDetail{Word: "hello", Start: 100 * time.Millisecond, Confidence: 0.9},
		types.WordDetail{Word: "world", Start: 600 * time.Millisecond, Confidence: 0.9},
	)}

	s, err := session.New(session.Options{
		PlayerName:  "alice",
		SongID:      "artist/song",
		Timeline:    shortTimeline(t),
		Recognizer:  rec,
		Leaderboard: board,
		Countdown:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.State() != session.StateIdle {
		t.Errorf("initial state = %v, want idle", s.State())
	}

	// Collect the event stream while the session runs.
	var states []session.State
	var words int
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for ev := range s.Events() {
			switch ev.Kind {
			case session.KindState:
				states = append(states, ev.State)
			case session.KindWord:
				words++
			}
		}
	}()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := waitResult(t, s)
	<-collected

	if s.State() != session.StateComplete {
		t.Errorf("final state = %v, want complete", s.State())
	}
	wantStates := []session.State{
		session.StateCountdown,
		session.StateRecording,
		session.StateScoring,
		session.StateComplete,
	}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	for i, w := range wantStates {
		if states[i] != w {
			t.Errorf("state %d = %v, want %v", i, states[i], w)
		}
	}
	if words != 2 {
		t.Errorf("word events = %d, want 2", words)
	}

	if res.Score.Exact != 2 || res.Score.Aggregate != 100 {
		t.Errorf("score = %+v, want two exacts at 100", res.Score)
	}

	top, err := board.Top(context.Background(), 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 1 || top[0].PlayerName != "alice" || top[0].Score != 100 {
		t.Errorf("leaderboard = %+v", top)
	}

	// The recognizer was seeded with boost hints for the lyric vocabulary.
	calls := rec.StartStreamCalls
	if len(calls) != 1 {
		t.Fatalf("StartStream calls = %d, want 1", len(calls))
	}
	hints := calls[0].Cfg.Vocabulary
	if len(hints) != 2 {
		t.Fatalf("vocabulary hints = %+v, want 2", hints)
	}
	for i, want := range []string{"hello", "world"} {
		if hints[i].Word != want || hints[i].Boost <= 0 {
			t.Errorf("hint %d = %+v, want word %q with a positive boost", i, hints[i], want)
		}
	}
}

func TestSession_MissedWordsScoreMissing(t *testing.T) {
	t.Parallel()
	rec := &mock.Provider{Session: finalsSession(
		types.WordDetail{Word: "hello", Start: 100 * time.Millisecond, Confidence: 0.9},
	)}

	s, err := session.New(session.Options{
		Timeline:   shortTimeline(t),
		Recognizer: rec,
		Countdown:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := waitResult(t, s)

	if res.Score.Exact != 1 || res.Score.Missing != 1 {
		t.Errorf("score = %+v, want one exact and one missing", res.Score)
	}
}

func TestSession_CancelWritesNothing(t *testing.T) {
	t.Parallel()
	board := leaderboard.NewMemoryStore()

	// An open-ended mock session keeps the recording phase alive until the
	// cancel lands.
	sess := &mock.Session{
		PartialsCh: make(chan types.Segment),
		FinalsCh:   make(chan types.Segment),
	}
	s, err := session.New(session.Options{
		PlayerName:  "bob",
		SongID:      "artist/song",
		Timeline:    shortTimeline(t),
		Recognizer:  &mock.Provider{Session: sess},
		Leaderboard: board,
		Countdown:   10 * time.Millisecond,
		Duration:    10 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let it get into recording, then pull the plug.
	deadline := time.Now().Add(5 * time.Second)
	for s.State() != session.StateRecording {
		if time.Now().After(deadline) {
			t.Fatalf("never reached recording, state = %v", s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Wait(ctx); !errors.Is(err, session.ErrCancelled) {
		t.Fatalf("Wait = %v, want ErrCancelled", err)
	}
	if s.State() != session.StateIdle {
		t.Errorf("state after cancel = %v, want idle", s.State())
	}
	if _, ok := s.Result(); ok {
		t.Error("cancelled session must not produce a result")
	}

	top, err := board.Top(context.Background(), 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 0 {
		t.Errorf("leaderboard = %+v, want empty after cancel", top)
	}
}

func TestSession_CancelBeforeStart(t *testing.T) {
	t.Parallel()
	s, err := session.New(session.Options{
		Timeline:   shortTimeline(t),
		Recognizer: &mock.Provider{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Cancel()

	if _, ok := <-s.Events(); ok {
		t.Error("events channel should be closed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := s.Wait(ctx); !errors.Is(err, session.ErrCancelled) {
		t.Errorf("Wait = %v, want ErrCancelled", err)
	}
}

func TestSession_EmptyTimelineCompletesAtZero(t *testing.T) {
	t.Parallel()
	board := leaderboard.NewMemoryStore()
	s, err := session.New(session.Options{
		PlayerName:  "carol",
		Timeline:    lyrics.Empty(0),
		Recognizer:  &mock.Provider{Session: finalsSession()},
		Leaderboard: board,
		Countdown:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := waitResult(t, s)

	if res.Score.Aggregate != 0 {
		t.Errorf("aggregate = %v, want 0", res.Score.Aggregate)
	}
	if s.State() != session.StateComplete {
		t.Errorf("state = %v, want complete", s.State())
	}

	// A zero score is still a completed attempt and lands on the board.
	top, _ := board.Top(context.Background(), 10)
	if len(top) != 1 || top[0].Score != 0 {
		t.Errorf("leaderboard = %+v", top)
	}
}

func TestSession_RecognizerFailureScoresZero(t *testing.T) {
	t.Parallel()
	rec := &mock.Provider{StartStreamErr: errors.New("no microphone")}
	s, err := session.New(session.Options{
		Timeline:   shortTimeline(t),
		Recognizer: rec,
		Countdown:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := waitResult(t, s)

	if res.Score.Aggregate != 0 || res.Score.Missing != 2 {
		t.Errorf("score = %+v, want all missing at 0", res.Score)
	}
}

func TestSession_SkipIntro(t *testing.T) {
	t.Parallel()
	// Vocals start at 8s; the intro must not count against the singer.
	tl, err := lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.ParseLRC("[00:08.00]hello world"),
		TotalDuration: 9 * time.Second,
	})
	if err != nil {
		t.Fatalf("building timeline: %v", err)
	}

	rec := &mock.Provider{Session: finalsSession(
		types.WordDetail{Word: "hello", Start: 50 * time.Millisecond, Confidence: 0.9},
		types.WordDetail{Word: "world", Start: 300 * time.Millisecond, Confidence: 0.9},
	)}
	s, err := session.New(session.Options{
		Timeline:   tl,
		Recognizer: rec,
		Countdown:  10 * time.Millisecond,
		SkipIntro:  true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := waitResult(t, s)

	// Observation clocks were shifted into song time, so both words match.
	if res.Score.Exact != 2 {
		t.Errorf("score = %+v, want both words exact", res.Score)
	}
}

func TestNew_RejectsBadPreset(t *testing.T) {
	t.Parallel()
	_, err := session.New(session.Options{
		Timeline:   lyrics.Empty(0),
		Recognizer: &mock.Provider{},
		Duration:   7 * time.Second,
	})
	if !errors.Is(err, session.ErrBadPreset) {
		t.Errorf("err = %v, want ErrBadPreset", err)
	}
}

func TestValidPreset(t *testing.T) {
	t.Parallel()
	for _, d := range session.Presets {
		if !session.ValidPreset(d) {
			t.Errorf("preset %v should be valid", d)
		}
	}
	if session.ValidPreset(7 * time.Second) {
		t.Error("7s is not a preset")
	}
}

func TestSetDuration_StateGated(t *testing.T) {
	t.Parallel()
	s, err := session.New(session.Options{
		Timeline:   shortTimeline(t),
		Recognizer: &mock.Provider{Session: finalsSession()},
		Countdown:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.SetDuration(30 * time.Second); err != nil {
		t.Errorf("idle SetDuration: %v", err)
	}
	if err := s.SetDuration(7 * time.Second); !errors.Is(err, session.ErrBadPreset) {
		t.Errorf("bad preset: err = %v", err)
	}

	// Bring it back to full-song so the test finishes fast, then start.
	if err := s.SetDuration(0); err != nil {
		t.Fatalf("SetDuration(0): %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitResult(t, s)

	if err := s.SetDuration(10 * time.Second); !errors.Is(err, session.ErrNotIdle) {
		t.Errorf("post-run SetDuration: err = %v, want ErrNotIdle", err)
	}
}

func TestAdjustSync_StateGated(t *testing.T) {
	t.Parallel()
	s, err := session.New(session.Options{
		Timeline:   shortTimeline(t),
		Recognizer: &mock.Provider{Session: finalsSession()},
		Countdown:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Adjustable while idle, in half-second steps.
	if got := s.AdjustSync(1); got != 500*time.Millisecond {
		t.Errorf("idle adjust = %v, want 500ms", got)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitResult(t, s)

	// Complete sessions report the standing offset but do not move it.
	for i := 0; i < 3; i++ {
		if got := s.AdjustSync(1); got != 500*time.Millisecond {
			t.Errorf("post-run adjust = %v, want unchanged 500ms", got)
		}
	}
}

func TestSetSkipIntro_StateGated(t *testing.T) {
	t.Parallel()
	tl, err := lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.ParseLRC("[00:08.00]hello world"),
		TotalDuration: 9 * time.Second,
	})
	if err != nil {
		t.Fatalf("building timeline: %v", err)
	}
	s, err := session.New(session.Options{
		Timeline:   tl,
		Recognizer: &mock.Provider{Session: finalsSession()},
		Countdown:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.SetSkipIntro(true)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := waitResult(t, s)

	// Skip-intro shortened the recording to the post-onset stretch; both
	// unsung words still count as missing.
	if res.Score.Missing != 2 {
		t.Errorf("score = %+v, want both words missing", res.Score)
	}

	// Toggling after the run is a no-op.
	s.SetSkipIntro(false)
	if s.State() != session.StateComplete {
		t.Errorf("state = %v, want complete", s.State())
	}
}

func TestSession_StartTwice(t *testing.T) {
	t.Parallel()
	s, err := session.New(session.Options{
		Timeline:   shortTimeline(t),
		Recognizer: &mock.Provider{Session: finalsSession()},
		Countdown:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, session.ErrNotIdle) {
		t.Errorf("second Start = %v, want ErrNotIdle", err)
	}
	waitResult(t, s)
}
