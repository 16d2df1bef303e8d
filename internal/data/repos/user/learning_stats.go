package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type LearningStatsRepo interface {
	GetLearningStats(dbc dbctx.Context, userID uuid.UUID) (*types.UserLearningStats, error)
	// SetLearningStats persists stats iff the stored row is still at
	// stats.Version; on success stats.Version is advanced. Returns ErrStale
	// when another writer moved the row first.
	SetLearningStats(dbc dbctx.Context, stats *types.UserLearningStats) error
}

type learningStatsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearningStatsRepo(db *gorm.DB, baseLog *logger.Logger) LearningStatsRepo {
	repoLog := baseLog.With("repo", "LearningStatsRepo")
	return &learningStatsRepo{db: db, log: repoLog}
}

// GetLearningStats returns the user's stats row, creating a zeroed one on
// first access.
func (r *learningStatsRepo) GetLearningStats(dbc dbctx.Context, userID uuid.UUID) (*types.UserLearningStats, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	seed := &types.UserLearningStats{UserID: userID}
	if err := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(seed).Error; err != nil {
		return nil, err
	}

	var row types.UserLearningStats
	if err := dbc.Conn(r.db).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.UserID == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	return &row, nil
}

func (r *learningStatsRepo) SetLearningStats(dbc dbctx.Context, stats *types.UserLearningStats) error {
	if stats == nil || stats.UserID == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	res := dbc.Conn(r.db).
		Model(&types.UserLearningStats{}).
		Where("user_id = ? AND version = ?", stats.UserID, stats.Version).
		Updates(map[string]interface{}{
			"current_streak":   stats.CurrentStreak,
			"longest_streak":   stats.LongestStreak,
			"last_active_date": stats.LastActiveDate,
			"version":          gorm.Expr("version + ?", 1),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrStale
	}
	stats.Version++
	return nil
}
