package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

// ProgressRecordRepo never exposes a blind full-row save: every mutation is
// guarded either by the row version or by the paid flag.
type ProgressRecordRepo interface {
	CreateIfAbsent(dbc dbctx.Context, row *types.ProgressRecord) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProgressRecord, error)
	GetByUserAndLesson(dbc dbctx.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ProgressRecord, error)
	UpdateVersioned(dbc dbctx.Context, id uuid.UUID, expectedVersion int64, updates map[string]interface{}) (bool, error)
	MarkPaid(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
	UpdateUnpaidOrder(dbc dbctx.Context, id uuid.UUID, orderID string, updates map[string]interface{}) (bool, error)
}

type progressRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRecordRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRecordRepo {
	repoLog := baseLog.With("repo", "ProgressRecordRepo")
	return &progressRecordRepo{db: db, log: repoLog}
}

// CreateIfAbsent inserts row unless (user_id, lesson_id) already exists.
// It reports whether this call created the row.
func (r *progressRecordRepo) CreateIfAbsent(dbc dbctx.Context, row *types.ProgressRecord) (bool, error) {
	if row == nil || row.UserID == uuid.Nil || row.LessonID == uuid.Nil {
		return false, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	res := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *progressRecordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProgressRecord, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ProgressRecord
	if err := dbc.Conn(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *progressRecordRepo) GetByUserAndLesson(dbc dbctx.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error) {
	if userID == uuid.Nil || lessonID == uuid.Nil {
		return nil, nil
	}
	var row types.ProgressRecord
	if err := dbc.Conn(r.db).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *progressRecordRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ProgressRecord, error) {
	var out []*types.ProgressRecord
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	if err := dbc.Conn(r.db).
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateVersioned applies updates only if the row is still at expectedVersion,
// bumping the version. false means a concurrent writer got there first.
func (r *progressRecordRepo) UpdateVersioned(dbc dbctx.Context, id uuid.UUID, expectedVersion int64, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	updates = withVersionBump(updates)
	res := dbc.Conn(r.db).
		Model(&types.ProgressRecord{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkPaid flips paid false -> true. Only one caller can ever observe true.
func (r *progressRecordRepo) MarkPaid(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	updates = withVersionBump(updates)
	updates["paid"] = true
	res := dbc.Conn(r.db).
		Model(&types.ProgressRecord{}).
		Where("id = ? AND paid = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateUnpaidOrder touches the payment fields of an unpaid record, but only
// while it still points at orderID.
func (r *progressRecordRepo) UpdateUnpaidOrder(dbc dbctx.Context, id uuid.UUID, orderID string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || orderID == "" {
		return false, nil
	}
	updates = withVersionBump(updates)
	res := dbc.Conn(r.db).
		Model(&types.ProgressRecord{}).
		Where("id = ? AND paid = ? AND order_id = ?", id, false, orderID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func withVersionBump(updates map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(updates)+2)
	for k, v := range updates {
		out[k] = v
	}
	out["version"] = gorm.Expr("version + ?", 1)
	if _, ok := out["updated_at"]; !ok {
		out["updated_at"] = time.Now().UTC()
	}
	return out
}
