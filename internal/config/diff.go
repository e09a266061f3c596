package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ScoringChanged is true if any scoring threshold or weight changed.
	// Running sessions keep the config they started with; new sessions pick
	// up the reloaded values.
	ScoringChanged bool

	// AlignerChanged is true if any alignment tuning parameter changed.
	AlignerChanged bool

	// LeaderboardTopNChanged is true if the leaderboard display size changed.
	LeaderboardTopNChanged bool
	NewTopN                int
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.ScoringChanged || d.AlignerChanged || d.LeaderboardTopNChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Scoring != new.Scoring {
		d.ScoringChanged = true
	}

	if old.Aligner != new.Aligner {
		d.AlignerChanged = true
	}

	if old.Leaderboard.TopN != new.Leaderboard.TopN {
		d.LeaderboardTopNChanged = true
		d.NewTopN = new.Leaderboard.TopN
	}

	return d
}
