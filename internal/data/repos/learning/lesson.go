package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

// LessonRepo is the persistence side of the lesson catalog: reads plus the
// aggregate counters enrollment and payment are allowed to bump.
type LessonRepo interface {
	Create(dbc dbctx.Context, rows []*types.Lesson) ([]*types.Lesson, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error)
	IncrementEnrollment(dbc dbctx.Context, lessonID uuid.UUID, amount int64) error
	IncrementPurchase(dbc dbctx.Context, lessonID uuid.UUID, amount int64) error
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	repoLog := baseLog.With("repo", "LessonRepo")
	return &lessonRepo{db: db, log: repoLog}
}

func (r *lessonRepo) Create(dbc dbctx.Context, rows []*types.Lesson) ([]*types.Lesson, error) {
	if len(rows) == 0 {
		return []*types.Lesson{}, nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	if err := dbc.Conn(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *lessonRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Lesson
	err := dbc.Conn(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *lessonRepo) IncrementEnrollment(dbc dbctx.Context, lessonID uuid.UUID, amount int64) error {
	updates := map[string]interface{}{
		"enrollment_count": gorm.Expr("enrollment_count + ?", 1),
	}
	if amount > 0 {
		updates["revenue"] = gorm.Expr("revenue + ?", amount)
	}
	return r.increment(dbc, lessonID, updates)
}

func (r *lessonRepo) IncrementPurchase(dbc dbctx.Context, lessonID uuid.UUID, amount int64) error {
	updates := map[string]interface{}{
		"purchase_count": gorm.Expr("purchase_count + ?", 1),
	}
	if amount > 0 {
		updates["revenue"] = gorm.Expr("revenue + ?", amount)
	}
	return r.increment(dbc, lessonID, updates)
}

func (r *lessonRepo) increment(dbc dbctx.Context, lessonID uuid.UUID, updates map[string]interface{}) error {
	if lessonID == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	res := dbc.Conn(r.db).
		Model(&types.Lesson{}).
		Where("id = ?", lessonID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
