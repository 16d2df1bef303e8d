package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/data/repos"
	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/observability"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/pkg/strutil"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/platform/redislock"
)

const (
	versionMaxAttempts  = 5
	completionThreshold = 90
	maxBookmarkNote     = 500
)

type ProgressService interface {
	UpdateProgress(ctx context.Context, userID, lessonID uuid.UUID, watchTimeSeconds, totalTimeSeconds float64) (*types.ProgressRecord, error)
	CompleteManually(ctx context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error)
	RecordQuizAttempt(ctx context.Context, userID, lessonID uuid.UUID, score, maxScore float64) (*types.ProgressRecord, error)
	AddBookmark(ctx context.Context, userID, lessonID uuid.UUID, positionSeconds float64, note string) (*types.ProgressRecord, error)
}

type progressService struct {
	db      *gorm.DB
	log     *logger.Logger
	catalog LessonCatalog
	records repos.ProgressRecordRepo
	streaks StreakService
	locker  redislock.Locker
	metrics *observability.Metrics
}

func NewProgressService(
	db *gorm.DB,
	baseLog *logger.Logger,
	catalog LessonCatalog,
	records repos.ProgressRecordRepo,
	streaks StreakService,
	locker redislock.Locker,
) ProgressService {
	if locker == nil {
		locker = redislock.NewLocal()
	}
	return &progressService{
		db:      db,
		log:     baseLog.With("service", "ProgressService"),
		catalog: catalog,
		records: records,
		streaks: streaks,
		locker:  locker,
		metrics: observability.Current(),
	}
}

// progressChange computes the column updates for one attempt against rec.
// completed reports a transition into the completed state.
type progressChange func(rec *types.ProgressRecord, lesson *types.Lesson, now time.Time) (updates map[string]interface{}, completed bool, err error)

func (s *progressService) UpdateProgress(ctx context.Context, userID, lessonID uuid.UUID, watch, total float64) (*types.ProgressRecord, error) {
	if math.IsNaN(watch) || math.IsNaN(total) || math.IsInf(watch, 0) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("watch/total must be finite: %w", pkgerrors.ErrInvalidArgument)
	}
	if watch < 0 || total <= 0 {
		return nil, fmt.Errorf("watch must be >= 0 and total > 0: %w", pkgerrors.ErrInvalidArgument)
	}
	return s.apply(ctx, "update_progress", userID, lessonID, func(rec *types.ProgressRecord, _ *types.Lesson, now time.Time) (map[string]interface{}, bool, error) {
		watch := min(watch, total)
		updates := map[string]interface{}{
			"watch_time_seconds": watch,
			"total_time_seconds": total,
		}
		if rec.Status == types.ProgressStatusCompleted {
			return updates, false, nil
		}
		pct := min(int(math.Round(watch/total*100)), 100)
		if pct >= completionThreshold {
			markCompleted(rec, updates, now)
			return updates, true, nil
		}
		updates["progress_percentage"] = pct
		if rec.Status == types.ProgressStatusNotStarted {
			updates["status"] = types.ProgressStatusInProgress
		}
		if rec.StartedAt == nil {
			updates["started_at"] = now
		}
		return updates, false, nil
	})
}

func (s *progressService) CompleteManually(ctx context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error) {
	return s.apply(ctx, "complete_manually", userID, lessonID, func(rec *types.ProgressRecord, _ *types.Lesson, now time.Time) (map[string]interface{}, bool, error) {
		updates := map[string]interface{}{}
		if rec.Status == types.ProgressStatusCompleted {
			return updates, false, nil
		}
		markCompleted(rec, updates, now)
		return updates, true, nil
	})
}

func (s *progressService) RecordQuizAttempt(ctx context.Context, userID, lessonID uuid.UUID, score, maxScore float64) (*types.ProgressRecord, error) {
	if math.IsNaN(score) || math.IsNaN(maxScore) || maxScore <= 0 || score < 0 || score > maxScore {
		return nil, fmt.Errorf("score must be within [0, max_score] and max_score > 0: %w", pkgerrors.ErrInvalidArgument)
	}
	return s.apply(ctx, "record_quiz_attempt", userID, lessonID, func(rec *types.ProgressRecord, _ *types.Lesson, now time.Time) (map[string]interface{}, bool, error) {
		attempts, err := rec.QuizAttemptList()
		if err != nil {
			return nil, false, fmt.Errorf("decode quiz attempts: %w", err)
		}
		pct := math.Round(score/maxScore*10000) / 100
		attempts = append(attempts, types.QuizAttemptEntry{
			Score:       score,
			MaxScore:    maxScore,
			Percentage:  pct,
			AttemptedAt: now,
		})
		raw, err := json.Marshal(attempts)
		if err != nil {
			return nil, false, err
		}
		best := pct
		if rec.BestScore != nil && *rec.BestScore > best {
			best = *rec.BestScore
		}
		return map[string]interface{}{
			"quiz_attempts": datatypes.JSON(raw),
			"best_score":    best,
		}, false, nil
	})
}

func (s *progressService) AddBookmark(ctx context.Context, userID, lessonID uuid.UUID, positionSeconds float64, note string) (*types.ProgressRecord, error) {
	if math.IsNaN(positionSeconds) || positionSeconds < 0 {
		return nil, fmt.Errorf("position must be >= 0: %w", pkgerrors.ErrInvalidArgument)
	}
	note = strings.TrimSpace(note)
	note = strutil.Truncate(note, maxBookmarkNote)
	return s.apply(ctx, "add_bookmark", userID, lessonID, func(rec *types.ProgressRecord, lesson *types.Lesson, now time.Time) (map[string]interface{}, bool, error) {
		marks, err := rec.BookmarkList()
		if err != nil {
			return nil, false, fmt.Errorf("decode bookmarks: %w", err)
		}
		total := rec.TotalTimeSeconds
		if total <= 0 {
			total = lesson.TotalSeconds()
		}
		pos := positionSeconds
		if total > 0 {
			pos = min(pos, total)
		}
		marks = append(marks, types.Bookmark{PositionSeconds: pos, Note: note, CreatedAt: now})
		raw, err := json.Marshal(marks)
		if err != nil {
			return nil, false, err
		}
		return map[string]interface{}{"bookmarks": datatypes.JSON(raw)}, false, nil
	})
}

func markCompleted(rec *types.ProgressRecord, updates map[string]interface{}, now time.Time) {
	updates["status"] = types.ProgressStatusCompleted
	updates["progress_percentage"] = 100
	updates["completed_at"] = now
	if rec.StartedAt == nil {
		updates["started_at"] = now
	}
}

// apply runs change under the record lock with optimistic versioning. The
// streak is recorded after the write lands, and only by the writer that
// moved the record into completed.
func (s *progressService) apply(ctx context.Context, op string, userID, lessonID uuid.UUID, change progressChange) (*types.ProgressRecord, error) {
	if userID == uuid.Nil || lessonID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	lesson, err := s.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, recordLockKey(userID, lessonID))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.WithContext(ctx).Warn("Record lock unavailable, relying on version check", "op", op, "error", err)
		unlock = func() {}
	}
	defer unlock()

	dbc := dbctx.Context{Ctx: ctx}
	for attempt := 0; attempt < versionMaxAttempts; attempt++ {
		rec, err := s.records.GetByUserAndLesson(dbc, userID, lessonID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, pkgerrors.ErrNotFound
		}
		if lesson.IsPaid() && !rec.Paid {
			return nil, pkgerrors.ErrPaymentRequired
		}

		now := time.Now().UTC()
		updates, completed, err := change(rec, lesson, now)
		if err != nil {
			return nil, err
		}
		updates["last_accessed_at"] = now

		ok, err := s.records.UpdateVersioned(dbc, rec.ID, rec.Version, updates)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			s.metrics.IncVersionConflict(op, "retried")
			continue
		}

		if completed {
			s.metrics.IncCompletion(op)
			s.recordStreak(ctx, userID, lessonID, now)
		}
		out, err := s.records.GetByID(dbc, rec.ID)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, pkgerrors.ErrNotFound
		}
		return out, nil
	}
	s.metrics.IncVersionConflict(op, "exhausted")
	s.log.WithContext(ctx).Warn("Progress update gave up after version conflicts", "op", op, "user_id", userID, "lesson_id", lessonID)
	return nil, fmt.Errorf("%s: %w", op, pkgerrors.ErrConflict)
}

// recordStreak never fails the progress call: the completion is already
// durable and the streak is derived state.
func (s *progressService) recordStreak(ctx context.Context, userID, lessonID uuid.UUID, at time.Time) {
	if s.streaks == nil {
		return
	}
	if _, err := s.streaks.RecordCompletion(ctx, userID, at); err != nil {
		log := s.log.WithContext(ctx)
		level := log.Error
		if errors.Is(err, pkgerrors.ErrConflict) {
			level = log.Warn
		}
		level("Streak update failed", "user_id", userID, "lesson_id", lessonID, "error", err)
	}
}

func recordLockKey(userID, lessonID uuid.UUID) string {
	return "progress:" + userID.String() + ":" + lessonID.String()
}
