package lyrics_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/crooner-live/crooner/internal/lyrics"
)

func TestBuild_EmptyLyrics(t *testing.T) {
	t.Parallel()
	_, err := lyrics.Build(lyrics.BuildInput{TotalDuration: time.Minute})
	if !errors.Is(err, lyrics.ErrEmptyLyrics) {
		t.Errorf("err = %v, want ErrEmptyLyrics", err)
	}

	_, err = lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.SplitPlain("   \n  \n"),
		TotalDuration: time.Minute,
	})
	if !errors.Is(err, lyrics.ErrEmptyLyrics) {
		t.Errorf("whitespace-only input: err = %v, want ErrEmptyLyrics", err)
	}
}

func TestBuild_EvenFallback(t *testing.T) {
	t.Parallel()
	// 120s track, two lines of five words: each line gets 60s, each word a
	// 12s slot.
	var text string
	for i := 0; i < 2; i++ {
		text += "alpha bravo charlie delta echo\n"
	}
	tl, err := lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.SplitPlain(text),
		TotalDuration: 120 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tl.Source != lyrics.SourceFallback {
		t.Errorf("source = %v, want fallback", tl.Source)
	}
	if tl.Len() != 10 {
		t.Fatalf("len = %d, want 10", tl.Len())
	}
	for i, tok := range tl.Tokens {
		want := time.Duration(i) * 12 * time.Second
		if tok.Start != want {
			t.Errorf("token %d start = %v, want %v", i, tok.Start, want)
		}
	}
	if tl.Tokens[4].Line != 0 || tl.Tokens[5].Line != 1 {
		t.Errorf("line assignment: token 4 line=%d, token 5 line=%d", tl.Tokens[4].Line, tl.Tokens[5].Line)
	}
	if err := tl.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuild_TimedLines(t *testing.T) {
	t.Parallel()
	text := "[00:10.00]hello wonderful world\n[00:20.00]goodbye now\n"
	tl, err := lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.ParseLRC(text),
		TotalDuration: 40 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tl.Source != lyrics.SourcePrecise {
		t.Errorf("source = %v, want precise", tl.Source)
	}
	if tl.StartOffset != 10*time.Second {
		t.Errorf("start offset = %v, want 10s", tl.StartOffset)
	}
	if tl.Len() != 5 {
		t.Fatalf("len = %d, want 5", tl.Len())
	}

	// First token starts exactly at its line tag.
	if tl.Tokens[0].Start != 10*time.Second {
		t.Errorf("token 0 start = %v, want 10s", tl.Tokens[0].Start)
	}
	// All of line 0's slots fit before line 1 starts.
	for _, tok := range tl.Tokens[:3] {
		if tok.End > 20*time.Second {
			t.Errorf("token %d slot runs past next line: end=%v", tok.Index, tok.End)
		}
	}
	// Longer words hold longer slots.
	wonderful := tl.Tokens[1]
	world := tl.Tokens[2]
	if wonderful.End-wonderful.Start <= world.End-world.Start {
		t.Errorf("wonderful slot (%v) should exceed world slot (%v)",
			wonderful.End-wonderful.Start, world.End-world.Start)
	}
	if err := tl.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuild_WordTimings(t *testing.T) {
	t.Parallel()
	words := []lyrics.WordTiming{
		{Word: "hello", Start: 1 * time.Second, End: 2 * time.Second},
		{Word: "world", Start: 2 * time.Second, End: 3 * time.Second},
	}
	tl, err := lyrics.Build(lyrics.BuildInput{
		Words:         words,
		TotalDuration: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.Source != lyrics.SourcePrecise {
		t.Errorf("source = %v, want precise", tl.Source)
	}
	if tl.Tokens[0].Start != time.Second || tl.Tokens[1].Start != 2*time.Second {
		t.Errorf("timings not used directly: %+v", tl.Tokens)
	}
	if tl.StartOffset != time.Second {
		t.Errorf("start offset = %v, want 1s", tl.StartOffset)
	}
}

func TestBuild_WordTimingsRescaled(t *testing.T) {
	t.Parallel()
	// Timing span of 60s against a 120s track diverges by far more than 10%,
	// so every timestamp is scaled by 2.
	words := []lyrics.WordTiming{
		{Word: "one", Start: 10 * time.Second, End: 11 * time.Second},
		{Word: "two", Start: 59 * time.Second, End: 60 * time.Second},
	}
	tl, err := lyrics.Build(lyrics.BuildInput{
		Words:         words,
		TotalDuration: 120 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.Tokens[0].Start != 20*time.Second {
		t.Errorf("token 0 start = %v, want 20s", tl.Tokens[0].Start)
	}
	if tl.Tokens[1].Start != 118*time.Second {
		t.Errorf("token 1 start = %v, want 118s", tl.Tokens[1].Start)
	}
}

func TestBuild_WordTimingsLineBreaksOnGaps(t *testing.T) {
	t.Parallel()
	words := []lyrics.WordTiming{
		{Word: "one", Start: 1 * time.Second, End: 2 * time.Second},
		{Word: "two", Start: 2 * time.Second, End: 3 * time.Second},
		{Word: "three", Start: 8 * time.Second, End: 9 * time.Second},
	}
	tl, err := lyrics.Build(lyrics.BuildInput{Words: words, TotalDuration: 9 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.Tokens[1].Line != 0 || tl.Tokens[2].Line != 1 {
		t.Errorf("gap should break line: %+v", tl.Tokens)
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()
	tl := lyrics.Empty(3 * time.Minute)
	if tl.Len() != 0 {
		t.Errorf("len = %d, want 0", tl.Len())
	}
	if tl.TotalDuration != 3*time.Minute {
		t.Errorf("total = %v", tl.TotalDuration)
	}
	if got := tl.TokenAt(0); got != 0 {
		t.Errorf("TokenAt(0) = %d, want 0", got)
	}
}

func TestVocabulary_DedupesCaseInsensitively(t *testing.T) {
	t.Parallel()
	tl, err := lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.SplitPlain("Never never NEVER gonna\n"),
		TotalDuration: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vocab := tl.Vocabulary()
	if len(vocab) != 2 {
		t.Fatalf("vocabulary = %v, want 2 entries", vocab)
	}
	if vocab[0] != "Never" || vocab[1] != "gonna" {
		t.Errorf("vocabulary = %v", vocab)
	}
}

func TestTokenAt(t *testing.T) {
	t.Parallel()
	var text string
	for i := 0; i < 4; i++ {
		text += fmt.Sprintf("word%d\n", i)
	}
	tl, err := lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.SplitPlain(text),
		TotalDuration: 40 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Tokens start at 0s, 10s, 20s, 30s.
	cases := []struct {
		ts   time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Second, 1},
		{10 * time.Second, 1},
		{31 * time.Second, 4},
	}
	for _, tc := range cases {
		if got := tl.TokenAt(tc.ts); got != tc.want {
			t.Errorf("TokenAt(%v) = %d, want %d", tc.ts, got, tc.want)
		}
	}
}

func TestBuild_NormalizesTokens(t *testing.T) {
	t.Parallel()
	tl, err := lyrics.Build(lyrics.BuildInput{
		Lines:         lyrics.SplitPlain("Gonna shine, don't stop!\n"),
		TotalDuration: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"going to", "shine", "do not", "stop"}
	for i, tok := range tl.Tokens {
		if tok.Normalized != want[i] {
			t.Errorf("token %d normalized = %q, want %q", i, tok.Normalized, want[i])
		}
	}
}
