package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/score"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "flowtrain.db"))
	if nil != err {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func result(id string, points int, accuracy float64) score.Result {
	return score.Result{
		ID:           id,
		SequenceID:   "basics",
		SequenceName: "Basics",
		BPM:          120,
		GridMode:     game.Box,
		TotalBeats:   4,
		Hits:         3,
		Misses:       1,
		Score:        points,
		MaxCombo:     2,
		Accuracy:     accuracy,
		Grade:        score.GradeFor(accuracy),
		XP:           score.XPFor(accuracy, 2),
		StartedAt:    time.UnixMilli(1700000000000).UTC(),
		Duration:     2 * time.Second,
	}
}

func TestHistoryBestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for _, r := range []score.Result{result("a", 200, 50), result("b", 310, 75), result("c", 100, 25)} {
		if err := s.SavePerformance(ctx, r); nil != err {
			t.Fatal(err)
		}
	}
	other := result("d", 999, 100)
	other.SequenceID = "other"
	if err := s.SavePerformance(ctx, other); nil != err {
		t.Fatal(err)
	}

	history, err := s.History(ctx, "basics", 0)
	if nil != err {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 results, got %d", len(history))
	}
	if history[0].ID != "b" || history[1].ID != "a" || history[2].ID != "c" {
		t.Fatalf("unexpected order %s %s %s", history[0].ID, history[1].ID, history[2].ID)
	}

	best := history[0]
	want := result("b", 310, 75)
	if best.GridMode != game.Box || best.Grade != score.GradeB || best.Duration != want.Duration ||
		!best.StartedAt.Equal(want.StartedAt) || best.XP != want.XP {
		t.Fatalf("round trip mismatch %+v", best)
	}

	top, err := s.History(ctx, "basics", 1)
	if nil != err || len(top) != 1 {
		t.Fatalf("expected one result, got %d %v", len(top), err)
	}
}

func TestDuplicatePerformance(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	if err := s.SavePerformance(ctx, result("a", 100, 25)); nil != err {
		t.Fatal(err)
	}
	if err := s.SavePerformance(ctx, result("a", 100, 25)); nil == err {
		t.Fatal("expected a duplicate id to fail")
	}
}

func TestTrackAction(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for i := 0; i < 2; i++ {
		if err := s.TrackAction(ctx, score.ActionSessionCompleted, map[string]any{"score": 310}); nil != err {
			t.Fatal(err)
		}
	}
	if err := s.TrackAction(ctx, score.ActionPerfectRun, nil); nil != err {
		t.Fatal(err)
	}
	if err := s.TrackAction(ctx, "", nil); nil == err {
		t.Fatal("expected an empty action to fail")
	}

	if n, err := s.ActionCount(ctx, score.ActionSessionCompleted); nil != err || n != 2 {
		t.Fatalf("expected 2 completions, got %d %v", n, err)
	}
	if n, err := s.ActionCount(ctx, score.ActionComboStreak); nil != err || n != 0 {
		t.Fatalf("expected no combo streaks, got %d %v", n, err)
	}
}

func TestChallengeProgress(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	if err := s.RecordProgress(ctx, "weekly", 1, 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetProgress(ctx, "weekly"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.DefineChallenge(ctx, "weekly", "Weekly", 2); nil != err {
		t.Fatal(err)
	}
	p, err := s.GetProgress(ctx, "weekly")
	if nil != err || p.Current != 0 || p.Target != 2 || p.Completed {
		t.Fatalf("unexpected fresh progress %+v %v", p, err)
	}

	if err := s.RecordProgress(ctx, "weekly", 1, 310); nil != err {
		t.Fatal(err)
	}
	if err := s.RecordProgress(ctx, "weekly", 1, 200); nil != err {
		t.Fatal(err)
	}
	p, err = s.GetProgress(ctx, "weekly")
	if nil != err || p.Current != 2 || p.BestScore != 310 || !p.Reached() || p.Completed {
		t.Fatalf("unexpected progress %+v %v", p, err)
	}

	if err := s.CompleteChallenge(ctx, "weekly"); nil != err {
		t.Fatal(err)
	}
	if err := s.CompleteChallenge(ctx, "weekly"); nil != err {
		t.Fatal(err)
	}
	p, err = s.GetProgress(ctx, "weekly")
	if nil != err || !p.Completed || p.Current != 2 {
		t.Fatalf("unexpected completed progress %+v %v", p, err)
	}

	if err := s.DefineChallenge(ctx, "weekly", "Weekly", 5); nil != err {
		t.Fatal(err)
	}
	if p, _ := s.GetProgress(ctx, "weekly"); p.Current != 2 || p.Target != 5 {
		t.Fatalf("redefining lost progress %+v", p)
	}
}

func TestSummarizerPublishesToStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	if err := s.DefineChallenge(ctx, "first", "First steps", 1); nil != err {
		t.Fatal(err)
	}

	sum := score.NewSummarizer(s, s, s, nil)
	sum.ChallengeID = "first"
	r := result("run", 310, 75)
	if err := sum.Publish(ctx, r); nil != err {
		t.Fatal(err)
	}

	if h, _ := s.History(ctx, "basics", 0); len(h) != 1 {
		t.Fatalf("expected one saved performance, got %d", len(h))
	}
	if n, _ := s.ActionCount(ctx, score.ActionSessionCompleted); n != 1 {
		t.Fatalf("expected one completion, got %d", n)
	}
	if p, _ := s.GetProgress(ctx, "first"); !p.Completed {
		t.Fatalf("expected the challenge completed, got %+v", p)
	}
}

func TestMigrationsApplyOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flowtrain.db")
	for i := 0; i < 2; i++ {
		s, err := Open(ctx, path)
		if nil != err {
			t.Fatalf("open %d: %v", i, err)
		}
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+migrationTable).Scan(&n); nil != err {
			t.Fatal(err)
		}
		if n != 3 {
			t.Fatalf("expected 3 applied migrations, got %d", n)
		}
		_ = s.Close()
	}
}

func TestMigrateSkipsDownAndOrders(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	fsys := fstest.MapFS{
		"b.sql":    {Data: []byte("-- +migrate Up\nINSERT INTO steps (name) VALUES ('b');\n-- +migrate Down\nDROP TABLE steps;\n")},
		"a.sql":    {Data: []byte("CREATE TABLE steps (name TEXT);")},
		"notes.md": {Data: []byte("ignored")},
	}
	if err := migrate(ctx, s.db, fsys); nil != err {
		t.Fatal(err)
	}
	if err := migrate(ctx, s.db, fsys); nil != err {
		t.Fatal(err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps`).Scan(&n); nil != err {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); nil == err {
		t.Fatal("expected an error for an empty path")
	}
}
