package payments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type GatewayEventRepo interface {
	Create(dbc dbctx.Context, row *types.PaymentGatewayEvent) (*types.PaymentGatewayEvent, error)
	MarkStatus(dbc dbctx.Context, id uuid.UUID, status types.GatewayEventStatus, errMsg string) error
	ListByOrderID(dbc dbctx.Context, orderID string) ([]*types.PaymentGatewayEvent, error)
}

type gatewayEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGatewayEventRepo(db *gorm.DB, baseLog *logger.Logger) GatewayEventRepo {
	repoLog := baseLog.With("repo", "GatewayEventRepo")
	return &gatewayEventRepo{db: db, log: repoLog}
}

func (r *gatewayEventRepo) Create(dbc dbctx.Context, row *types.PaymentGatewayEvent) (*types.PaymentGatewayEvent, error) {
	if row == nil {
		return nil, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = types.GatewayEventStatusReceived
	}
	if row.ReceivedAt.IsZero() {
		row.ReceivedAt = time.Now().UTC()
	}
	if err := dbc.Conn(r.db).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *gatewayEventRepo) MarkStatus(dbc dbctx.Context, id uuid.UUID, status types.GatewayEventStatus, errMsg string) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"processed_at": now,
		"updated_at":   now,
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return dbc.Conn(r.db).
		Model(&types.PaymentGatewayEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *gatewayEventRepo) ListByOrderID(dbc dbctx.Context, orderID string) ([]*types.PaymentGatewayEvent, error) {
	var out []*types.PaymentGatewayEvent
	if orderID == "" {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("order_id = ?", orderID).
		Order("received_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
