package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/data/repos"
	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/observability"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

const streakMaxAttempts = 5

// CivilDate returns the calendar day of t in loc, encoded as midnight UTC.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextStreak folds one completion on `today` into prev. Same-day and
// out-of-order (older) completions leave prev untouched.
func NextStreak(prev types.UserLearningStats, today time.Time) types.UserLearningStats {
	today = CivilDate(today, time.UTC)
	next := prev

	if prev.LastActiveDate == nil {
		next.CurrentStreak = 1
		next.LongestStreak = max(prev.LongestStreak, 1)
		next.LastActiveDate = &today
		return next
	}

	last := CivilDate(*prev.LastActiveDate, time.UTC)
	diff := int(today.Sub(last).Hours() / 24)
	switch {
	case diff <= 0:
		return prev
	case diff == 1:
		next.CurrentStreak = prev.CurrentStreak + 1
	default:
		next.CurrentStreak = 1
	}
	next.LongestStreak = max(prev.LongestStreak, next.CurrentStreak)
	next.LastActiveDate = &today
	return next
}

type StreakService interface {
	RecordCompletion(ctx context.Context, userID uuid.UUID, at time.Time) (*types.UserLearningStats, error)
}

type streakService struct {
	db      *gorm.DB
	log     *logger.Logger
	stats   repos.LearningStatsRepo
	loc     *time.Location
	metrics *observability.Metrics
}

func NewStreakService(db *gorm.DB, baseLog *logger.Logger, stats repos.LearningStatsRepo, loc *time.Location) StreakService {
	if loc == nil {
		loc = time.Local
	}
	return &streakService{
		db:      db,
		log:     baseLog.With("service", "StreakService"),
		stats:   stats,
		loc:     loc,
		metrics: observability.Current(),
	}
}

func (s *streakService) RecordCompletion(ctx context.Context, userID uuid.UUID, at time.Time) (*types.UserLearningStats, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	today := CivilDate(at, s.loc)
	dbc := dbctx.Context{Ctx: ctx}

	for attempt := 0; attempt < streakMaxAttempts; attempt++ {
		cur, err := s.stats.GetLearningStats(dbc, userID)
		if err != nil {
			return nil, fmt.Errorf("load learning stats: %w", err)
		}
		next := NextStreak(*cur, today)
		if sameStreak(cur, &next) {
			return cur, nil
		}
		err = s.stats.SetLearningStats(dbc, &next)
		if err == nil {
			s.log.Debug("Streak updated",
				"user_id", userID,
				"current_streak", next.CurrentStreak,
				"longest_streak", next.LongestStreak,
			)
			return &next, nil
		}
		if !errors.Is(err, pkgerrors.ErrStale) {
			return nil, fmt.Errorf("save learning stats: %w", err)
		}
		s.metrics.IncVersionConflict("streak", "retried")
	}
	s.metrics.IncVersionConflict("streak", "exhausted")
	return nil, fmt.Errorf("record completion streak: %w", pkgerrors.ErrConflict)
}

func sameStreak(a, b *types.UserLearningStats) bool {
	if a.CurrentStreak != b.CurrentStreak || a.LongestStreak != b.LongestStreak {
		return false
	}
	if a.LastActiveDate == nil || b.LastActiveDate == nil {
		return a.LastActiveDate == b.LastActiveDate
	}
	return a.LastActiveDate.Equal(*b.LastActiveDate)
}
