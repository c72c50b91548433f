// Package storage keeps the training history in SQLite: finished
// performances, achievement actions and challenge progress.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/score"
	"git.lost.host/meutraa/flowtrain/internal/storage/migrations"
)

var ErrNotFound = errors.New("not found")

// Store implements the score collaborators on one SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ score.HistoryStore       = (*Store)(nil)
	_ score.AchievementTracker = (*Store)(nil)
	_ score.ChallengeTracker   = (*Store)(nil)
)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if nil != err {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); nil != err {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db, migrations.FS); nil != err {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SavePerformance(ctx context.Context, r score.Result) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO performances (
    id, sequence_id, sequence_name, bpm, grid_mode, timed,
    total_beats, hits, misses, score, max_combo, accuracy, grade, xp,
    started_at, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SequenceID, r.SequenceName, r.BPM, r.GridMode.String(), r.Timed,
		r.TotalBeats, r.Hits, r.Misses, r.Score, r.MaxCombo, r.Accuracy, string(r.Grade), r.XP.Total(),
		toMillis(r.StartedAt), r.Duration.Milliseconds(),
	)
	if nil != err {
		return fmt.Errorf("save performance %s: %w", r.ID, err)
	}
	return nil
}

// History lists the performances of a sequence, best score first. A limit
// of zero or less returns all of them.
func (s *Store) History(ctx context.Context, sequenceID string, limit int) ([]score.Result, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
    id, sequence_id, sequence_name, bpm, grid_mode, timed,
    total_beats, hits, misses, score, max_combo, accuracy, grade, xp,
    started_at, duration_ms
FROM performances
WHERE sequence_id = ?
ORDER BY score DESC, accuracy DESC, started_at ASC
LIMIT ?`, sequenceID, limit)
	if nil != err {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var results []score.Result
	for rows.Next() {
		var (
			r          score.Result
			gridMode   string
			grade      string
			xp         int
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(
			&r.ID, &r.SequenceID, &r.SequenceName, &r.BPM, &gridMode, &r.Timed,
			&r.TotalBeats, &r.Hits, &r.Misses, &r.Score, &r.MaxCombo, &r.Accuracy, &grade, &xp,
			&startedAt, &durationMS,
		); nil != err {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		if mode, err := game.ParseGridMode(gridMode); nil == err {
			r.GridMode = mode
		}
		r.Grade = score.Grade(grade)
		r.XP = score.XPFor(r.Accuracy, r.MaxCombo)
		r.StartedAt = fromMillis(startedAt)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) TrackAction(ctx context.Context, name string, payload map[string]any) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("action name is required")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if nil != err {
		return fmt.Errorf("encode %s payload: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO achievement_actions (id, action, payload, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), name, string(data), toMillis(s.now()),
	)
	if nil != err {
		return fmt.Errorf("track %s: %w", name, err)
	}
	return nil
}

// ActionCount reports how often an action was tracked.
func (s *Store) ActionCount(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM achievement_actions WHERE action = ?`, name).Scan(&n)
	if nil != err {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// DefineChallenge creates a challenge or updates its name and target,
// keeping any progress already made.
func (s *Store) DefineChallenge(ctx context.Context, id, name string, target int) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("challenge id is required")
	}
	if target <= 0 {
		return fmt.Errorf("challenge target must be greater than zero")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO challenges (id, name, target) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, target = excluded.target`, id, name, target)
	if nil != err {
		return fmt.Errorf("define challenge %s: %w", id, err)
	}
	return nil
}

func (s *Store) RecordProgress(ctx context.Context, challengeID string, increment, sessionScore int) error {
	if err := s.requireChallenge(ctx, challengeID); nil != err {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO challenge_progress (challenge_id, current, best_score) VALUES (?, ?, ?)
ON CONFLICT (challenge_id) DO UPDATE SET
    current = current + excluded.current,
    best_score = MAX(best_score, excluded.best_score)`, challengeID, increment, sessionScore)
	if nil != err {
		return fmt.Errorf("record progress %s: %w", challengeID, err)
	}
	return nil
}

func (s *Store) GetProgress(ctx context.Context, challengeID string) (score.Progress, error) {
	var (
		p         = score.Progress{ChallengeID: challengeID}
		completed sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT c.target, COALESCE(p.current, 0), COALESCE(p.best_score, 0), p.completed_at
FROM challenges c LEFT JOIN challenge_progress p ON p.challenge_id = c.id
WHERE c.id = ?`, challengeID).Scan(&p.Target, &p.Current, &p.BestScore, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return score.Progress{}, fmt.Errorf("challenge %s: %w", challengeID, ErrNotFound)
	}
	if nil != err {
		return score.Progress{}, fmt.Errorf("get progress %s: %w", challengeID, err)
	}
	p.Completed = completed.Valid
	return p, nil
}

// CompleteChallenge marks a challenge done. Completing it again keeps the
// first completion time.
func (s *Store) CompleteChallenge(ctx context.Context, challengeID string) error {
	if err := s.requireChallenge(ctx, challengeID); nil != err {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO challenge_progress (challenge_id, completed_at) VALUES (?, ?)
ON CONFLICT (challenge_id) DO UPDATE SET completed_at = COALESCE(completed_at, excluded.completed_at)`,
		challengeID, toMillis(s.now()))
	if nil != err {
		return fmt.Errorf("complete challenge %s: %w", challengeID, err)
	}
	return nil
}

func (s *Store) requireChallenge(ctx context.Context, id string) error {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM challenges WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("challenge %s: %w", id, ErrNotFound)
	}
	return err
}
