package score

import "context"

// HistoryStore persists completed sessions.
type HistoryStore interface {
	SavePerformance(ctx context.Context, r Result) error
}

// AchievementTracker receives named actions that may unlock achievements.
type AchievementTracker interface {
	TrackAction(ctx context.Context, name string, payload map[string]any) error
}

// Progress is the state of a challenge after progress was recorded.
type Progress struct {
	ChallengeID string
	Current     int
	Target      int
	BestScore   int
	Completed   bool
}

// Reached reports whether the target has been met.
func (p Progress) Reached() bool {
	return p.Target > 0 && p.Current >= p.Target
}

// ChallengeTracker owns the challenge rules. The summarizer only supplies
// the increment and score of a finished session.
type ChallengeTracker interface {
	RecordProgress(ctx context.Context, challengeID string, increment, score int) error
	GetProgress(ctx context.Context, challengeID string) (Progress, error)
	CompleteChallenge(ctx context.Context, challengeID string) error
}

// Achievement action names.
const (
	ActionSessionCompleted = "session_completed"
	ActionPerfectRun       = "perfect_run"
	ActionComboStreak      = "combo_streak"
	ActionSpeedDemon       = "speed_demon"
)
