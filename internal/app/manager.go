package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crooner-live/crooner/internal/align"
	"github.com/crooner-live/crooner/internal/catalog"
	"github.com/crooner-live/crooner/internal/config"
	"github.com/crooner-live/crooner/internal/leaderboard"
	"github.com/crooner-live/crooner/internal/observe"
	"github.com/crooner-live/crooner/internal/score"
	"github.com/crooner-live/crooner/internal/session"
	"github.com/crooner-live/crooner/pkg/recognizer"
)

// ErrUnknownSession is returned by Manager lookups for IDs it does not hold.
var ErrUnknownSession = errors.New("app: unknown session")

// SessionInfo holds metadata about a managed session.
type SessionInfo struct {
	// ID is the unique identifier for this session.
	ID string

	// PlayerName and SongID identify the attempt.
	PlayerName string
	SongID     string

	// StartedAt is when the session was created.
	StartedAt time.Time
}

// managed pairs a session with its metadata and event broadcaster.
type managed struct {
	info    SessionInfo
	sess    *session.Session
	events  *broadcaster
	cleanup func()
}

// Manager owns all live sessions, keyed by ID. Multiple sessions may run
// concurrently; each owns an independent alignment state and scorecard.
// All exported methods are safe for concurrent use.
type Manager struct {
	catalog    *catalog.Catalog
	recognizer recognizer.Provider
	board      leaderboard.Store
	metrics    *observe.Metrics
	cfg        *config.Config
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*managed
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	Catalog     *catalog.Catalog
	Recognizer  recognizer.Provider
	Leaderboard leaderboard.Store
	Metrics     *observe.Metrics
	Config      *config.Config
	Logger      *slog.Logger
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Manager{
		catalog:    cfg.Catalog,
		recognizer: cfg.Recognizer,
		board:      cfg.Leaderboard,
		metrics:    cfg.Metrics,
		cfg:        cfg.Config,
		logger:     cfg.Logger,
		sessions:   make(map[string]*managed),
	}
}

// CreateRequest describes a new recording attempt.
type CreateRequest struct {
	PlayerName string
	SongID     string

	// Duration is the recording limit preset; zero means full-song mode.
	Duration time.Duration

	// SkipIntro starts alignment at the first vocal onset.
	SkipIntro bool
}

// Create builds and starts a session for the request. The countdown begins
// immediately. The returned ID addresses the session in later calls.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (SessionInfo, error) {
	buildStart := time.Now()
	timeline, err := m.catalog.Timeline(req.SongID)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: create session: %w", err)
	}
	m.metrics.TimelineBuildDuration.Record(ctx, time.Since(buildStart).Seconds())

	recCfg := m.cfg.Recognizer
	sess, err := session.New(session.Options{
		PlayerName: req.PlayerName,
		SongID:     req.SongID,
		Timeline:   timeline,
		Recognizer: m.recognizer,
		StreamConfig: recognizer.StreamConfig{
			SampleRate: recCfg.SampleRate,
			Channels:   1,
			Language:   recCfg.Language,
		},
		Leaderboard:  m.board,
		Align:        alignConfig(m.cfg.Aligner),
		Score:        scoreConfig(m.cfg.Scoring),
		Countdown:    m.cfg.Session.Countdown.Std(),
		Duration:     req.Duration,
		SkipIntro:    req.SkipIntro,
		Logger:       m.logger,
		Metrics:      m.metrics,
		ProviderName: recCfg.Name,
	})
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: create session: %w", err)
	}

	info := SessionInfo{
		ID:         uuid.NewString(),
		PlayerName: req.PlayerName,
		SongID:     req.SongID,
		StartedAt:  time.Now().UTC(),
	}
	mg := &managed{info: info, sess: sess, events: newBroadcaster()}

	m.mu.Lock()
	m.sessions[info.ID] = mg
	m.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, info.ID)
		m.mu.Unlock()
		return SessionInfo{}, fmt.Errorf("app: start session: %w", err)
	}

	m.metrics.ActiveSessions.Add(ctx, 1)
	go m.pump(mg)

	m.logger.Info("session created",
		"session_id", info.ID,
		"song_id", req.SongID,
		"player", req.PlayerName,
		"duration", req.Duration,
		"skip_intro", req.SkipIntro,
	)
	return info, nil
}

// pump drains the session's event stream, records metrics, and fans events
// out to subscribers. It runs until the stream closes.
func (m *Manager) pump(mg *managed) {
	ctx := context.Background()
	for ev := range mg.sess.Events() {
		if ev.Kind == session.KindWord {
			m.metrics.RecordClassification(ctx, ev.Word.Classification.String())
		}
		mg.events.publish(ev)
	}
	mg.events.close()

	m.metrics.ActiveSessions.Add(ctx, -1)
	if res, ok := mg.sess.Result(); ok {
		m.metrics.RecordSessionCompleted(ctx, "complete", res.Score.Aggregate)
	} else {
		m.metrics.RecordSessionCompleted(ctx, "cancelled", 0)
	}
}

// lookup returns the managed session for id.
func (m *Manager) lookup(id string) (*managed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mg, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return mg, nil
}

// Get returns the session's metadata and handle.
func (m *Manager) Get(id string) (SessionInfo, *session.Session, error) {
	mg, err := m.lookup(id)
	if err != nil {
		return SessionInfo{}, nil, err
	}
	return mg.info, mg.sess, nil
}

// Subscribe returns the session's event stream: already-delivered events are
// replayed first, then live events follow. The channel closes when the
// session ends.
func (m *Manager) Subscribe(id string) (<-chan session.Event, func(), error) {
	mg, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, stop := mg.events.subscribe()
	return ch, stop, nil
}

// Cancel aborts the session. Idempotent; unknown IDs are an error.
func (m *Manager) Cancel(id string) error {
	mg, err := m.lookup(id)
	if err != nil {
		return err
	}
	mg.sess.Cancel()
	return nil
}

// AdjustSync nudges the session's sync offset one step in direction and
// returns the new offset.
func (m *Manager) AdjustSync(id string, direction int) (time.Duration, error) {
	mg, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	return mg.sess.AdjustSync(direction), nil
}

// Remove forgets a finished session. Live sessions are cancelled first.
func (m *Manager) Remove(id string) error {
	mg, err := m.lookup(id)
	if err != nil {
		return err
	}
	mg.sess.Cancel()

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// List returns metadata for all managed sessions, newest first.
func (m *Manager) List() []SessionInfo {
	m.mu.Lock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, mg := range m.sessions {
		out = append(out, mg.info)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Shutdown cancels every live session and waits briefly for their loops to
// wind down.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	all := make([]*managed, 0, len(m.sessions))
	for _, mg := range m.sessions {
		all = append(all, mg)
	}
	m.mu.Unlock()

	for _, mg := range all {
		mg.sess.Cancel()
	}
	for _, mg := range all {
		_, _ = mg.sess.Wait(ctx)
	}
}

// alignConfig converts the YAML aligner block to engine tunables. Zero
// values fall through to the engine defaults.
func alignConfig(c config.AlignerConfig) align.Config {
	return align.Config{
		ToleranceWindow: c.ToleranceWindow,
		TextWeight:      c.TextWeight,
		TimeWeight:      c.TimeWeight,
		MinSimilarity:   c.MinSimilarity,
		ProximityScale:  c.ProximityScale.Std(),
		ExpirySlack:     c.ExpirySlack.Std(),
		OffsetStep:      c.OffsetStep.Std(),
		MaxOffset:       c.MaxOffset.Std(),
	}
}

// scoreConfig converts the YAML scoring block to engine tunables.
func scoreConfig(c config.ScoringConfig) score.Config {
	return score.Config{
		ExactThreshold: c.ExactThreshold,
		CloseThreshold: c.CloseThreshold,
		CloseWeight:    c.CloseWeight,
		VibeWindow:     c.VibeWindow,
		VibeFactor:     c.VibeFactor,
	}
}
