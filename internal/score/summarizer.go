package score

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/log"
)

// Summary is what the session hands the summarizer on entry to review.
type Summary struct {
	Sequence  *game.Sequence
	Tally     Tally
	GridMode  game.GridMode
	Timed     bool
	StartedAt time.Time
	EndedAt   time.Time
}

// Summarizer turns a finished session into a Result and delivers it to the
// external collaborators. A failing collaborator never stops the others.
type Summarizer struct {
	History      HistoryStore
	Achievements AchievementTracker
	Challenges   ChallengeTracker
	// ChallengeID is the active challenge, empty when none is running.
	ChallengeID string
	Log         *log.Logger

	tracer trace.Tracer
	newID  func() string
	wg     sync.WaitGroup
}

func NewSummarizer(history HistoryStore, achievements AchievementTracker, challenges ChallengeTracker, logger *log.Logger) *Summarizer {
	return &Summarizer{
		History:      history,
		Achievements: achievements,
		Challenges:   challenges,
		Log:          logger,
		tracer:       otel.Tracer("git.lost.host/meutraa/flowtrain/internal/score"),
		newID:        uuid.NewString,
	}
}

func (s *Summarizer) Summarize(in Summary) Result {
	total := in.Sequence.TotalBeats()
	accuracy := Accuracy(in.Tally.Hits, total)

	r := Result{
		TotalBeats: total,
		Hits:       in.Tally.Hits,
		Misses:     in.Tally.Misses,
		Score:      in.Tally.Score,
		MaxCombo:   in.Tally.MaxCombo,
		Accuracy:   accuracy,
		Grade:      GradeFor(accuracy),
		XP:         XPFor(accuracy, in.Tally.MaxCombo),
		GridMode:   in.GridMode,
		Timed:      in.Timed,
		StartedAt:  in.StartedAt,
		Duration:   in.EndedAt.Sub(in.StartedAt),
	}
	if s.newID != nil {
		r.ID = s.newID()
	}
	if in.Sequence != nil {
		r.SequenceID = in.Sequence.ID
		r.SequenceName = in.Sequence.Name
		r.BPM = in.Sequence.BPM
	}
	return r
}

// Actions lists the achievement actions a result triggers.
func Actions(r Result) []string {
	actions := []string{ActionSessionCompleted}
	if r.Perfect() {
		actions = append(actions, ActionPerfectRun)
	}
	if r.MaxCombo >= ComboAchievement {
		actions = append(actions, ActionComboStreak)
	}
	if r.Timed && r.BPM >= SpeedAchievement {
		actions = append(actions, ActionSpeedDemon)
	}
	return actions
}

// Publish delivers r to every configured collaborator. The returned error
// joins every individual failure; each one is also logged.
func (s *Summarizer) Publish(ctx context.Context, r Result) error {
	var errs []error

	if s.History != nil {
		errs = append(errs, s.call(ctx, "save_performance", func(ctx context.Context) error {
			return s.History.SavePerformance(ctx, r)
		}))
	}

	if s.Achievements != nil {
		for _, action := range Actions(r) {
			errs = append(errs, s.call(ctx, "track_action", func(ctx context.Context) error {
				return s.Achievements.TrackAction(ctx, action, payload(r))
			}, attribute.String("action", action)))
		}
	}

	if s.Challenges != nil && s.ChallengeID != "" {
		errs = append(errs, s.call(ctx, "challenge_progress", func(ctx context.Context) error {
			return s.recordChallenge(ctx, r)
		}, attribute.String("challenge", s.ChallengeID)))
	}

	return errors.Join(errs...)
}

// PublishAsync runs Publish on its own goroutine. Wait blocks until every
// pending publish has returned.
func (s *Summarizer) PublishAsync(ctx context.Context, r Result) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Publish(ctx, r)
	}()
}

func (s *Summarizer) Wait() {
	s.wg.Wait()
}

func (s *Summarizer) recordChallenge(ctx context.Context, r Result) error {
	if err := s.Challenges.RecordProgress(ctx, s.ChallengeID, 1, r.Score); nil != err {
		return fmt.Errorf("record progress: %w", err)
	}
	p, err := s.Challenges.GetProgress(ctx, s.ChallengeID)
	if nil != err {
		return fmt.Errorf("get progress: %w", err)
	}
	if p.Reached() && !p.Completed {
		if err := s.Challenges.CompleteChallenge(ctx, s.ChallengeID); nil != err {
			return fmt.Errorf("complete challenge: %w", err)
		}
		s.Log.Infof("challenge %s completed", s.ChallengeID)
	}
	return nil
}

func (s *Summarizer) call(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) (err error) {
	tracer := s.tracer
	if tracer == nil {
		tracer = otel.Tracer("git.lost.host/meutraa/flowtrain/internal/score")
	}
	ctx, span := tracer.Start(ctx, "summary."+name, trace.WithAttributes(attrs...))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", name, p)
		}
		if nil != err {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.Log.Errorf("unable to %s: %v", name, err)
		}
	}()

	return fn(ctx)
}

func payload(r Result) map[string]any {
	return map[string]any{
		"session_id":  r.ID,
		"sequence_id": r.SequenceID,
		"accuracy":    r.Accuracy,
		"grade":       string(r.Grade),
		"max_combo":   r.MaxCombo,
		"score":       r.Score,
		"bpm":         r.BPM,
		"timed":       r.Timed,
	}
}
