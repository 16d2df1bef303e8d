package payments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type PaymentAttemptRepo interface {
	Create(dbc dbctx.Context, row *types.PaymentAttempt) (*types.PaymentAttempt, error)
	GetByOrderID(dbc dbctx.Context, orderID string) (*types.PaymentAttempt, error)
	ListByProgressRecord(dbc dbctx.Context, progressRecordID uuid.UUID) ([]*types.PaymentAttempt, error)
	SetPayURL(dbc dbctx.Context, orderID string, payURL string) error
	// Transition moves an attempt to `to` only from one of the listed states
	// and reports whether this call performed the move.
	Transition(dbc dbctx.Context, orderID string, from []types.AttemptStatus, to types.AttemptStatus, updates map[string]interface{}) (bool, error)
	ListExpiredPending(dbc dbctx.Context, now time.Time, limit int) ([]*types.PaymentAttempt, error)
}

type paymentAttemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPaymentAttemptRepo(db *gorm.DB, baseLog *logger.Logger) PaymentAttemptRepo {
	repoLog := baseLog.With("repo", "PaymentAttemptRepo")
	return &paymentAttemptRepo{db: db, log: repoLog}
}

func (r *paymentAttemptRepo) Create(dbc dbctx.Context, row *types.PaymentAttempt) (*types.PaymentAttempt, error) {
	if row == nil {
		return nil, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = types.AttemptStatusPending
	}
	if err := dbc.Conn(r.db).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *paymentAttemptRepo) GetByOrderID(dbc dbctx.Context, orderID string) (*types.PaymentAttempt, error) {
	if orderID == "" {
		return nil, nil
	}
	var row types.PaymentAttempt
	if err := dbc.Conn(r.db).
		Where("order_id = ?", orderID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *paymentAttemptRepo) ListByProgressRecord(dbc dbctx.Context, progressRecordID uuid.UUID) ([]*types.PaymentAttempt, error) {
	var out []*types.PaymentAttempt
	if progressRecordID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("progress_record_id = ?", progressRecordID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *paymentAttemptRepo) SetPayURL(dbc dbctx.Context, orderID string, payURL string) error {
	if orderID == "" {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.PaymentAttempt{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"pay_url":    payURL,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *paymentAttemptRepo) Transition(dbc dbctx.Context, orderID string, from []types.AttemptStatus, to types.AttemptStatus, updates map[string]interface{}) (bool, error) {
	if orderID == "" || len(from) == 0 {
		return false, nil
	}
	set := make(map[string]interface{}, len(updates)+2)
	for k, v := range updates {
		set[k] = v
	}
	set["status"] = to
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = time.Now().UTC()
	}
	res := dbc.Conn(r.db).
		Model(&types.PaymentAttempt{}).
		Where("order_id = ? AND status IN ?", orderID, from).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *paymentAttemptRepo) ListExpiredPending(dbc dbctx.Context, now time.Time, limit int) ([]*types.PaymentAttempt, error) {
	var out []*types.PaymentAttempt
	if limit <= 0 {
		limit = 100
	}
	if err := dbc.Conn(r.db).
		Where("status = ? AND expires_at <= ?", types.AttemptStatusPending, now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
