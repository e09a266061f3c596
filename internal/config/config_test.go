package config_test

import (
	"errors"
	"testing"

	"github.com/crooner-live/crooner/internal/config"
	"github.com/crooner-live/crooner/pkg/recognizer"
	"github.com/crooner-live/crooner/pkg/recognizer/mock"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "verbose", "DEBUG"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestLeaderboardBackend_IsValid(t *testing.T) {
	t.Parallel()
	for _, b := range []config.LeaderboardBackend{config.BackendMemory, config.BackendFile, config.BackendPostgres} {
		if !b.IsValid() {
			t.Errorf("%q should be valid", b)
		}
	}
	if config.LeaderboardBackend("redis").IsValid() {
		t.Error("redis should be invalid")
	}
}

func TestRegistry_CreateRecognizer(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.RecognizerEntry
	reg.RegisterRecognizer("mock", func(entry config.RecognizerEntry) (recognizer.Provider, error) {
		gotEntry = entry
		return &mock.Provider{}, nil
	})

	entry := config.RecognizerEntry{Name: "mock", Language: "en-US"}
	p, err := reg.CreateRecognizer(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("provider is nil")
	}
	if gotEntry.Language != "en-US" {
		t.Errorf("factory received entry %+v", gotEntry)
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateRecognizer(config.RecognizerEntry{Name: "whisper"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	reg.RegisterRecognizer("mock", func(config.RecognizerEntry) (recognizer.Provider, error) {
		return nil, errors.New("old factory")
	})
	reg.RegisterRecognizer("mock", func(config.RecognizerEntry) (recognizer.Provider, error) {
		return &mock.Provider{}, nil
	})

	p, err := reg.CreateRecognizer(config.RecognizerEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("provider is nil")
	}
}
