package payments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type GatewayEventStatus string

const (
	GatewayEventStatusReceived  GatewayEventStatus = "received"
	GatewayEventStatusProcessed GatewayEventStatus = "processed"
	GatewayEventStatusIgnored   GatewayEventStatus = "ignored"
	GatewayEventStatusFailed    GatewayEventStatus = "failed"
)

/*
payment_gateway_events = audit log of verified gateway callbacks.
  - Many rows per order (redeliveries included).
  - Raw payload kept for replay/debugging.
*/
type PaymentGatewayEvent struct {
	ID          uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Provider    Provider           `gorm:"column:provider;not null" json:"provider"`
	OrderID     string             `gorm:"column:order_id;not null;index" json:"order_id"`
	TransID     *string            `gorm:"column:trans_id" json:"trans_id,omitempty"`
	ResultCode  string             `gorm:"column:result_code" json:"result_code"`
	Amount      int64              `gorm:"column:amount;not null;default:0" json:"amount"`
	Payload     datatypes.JSON     `gorm:"type:jsonb;column:payload" json:"payload"`
	Signature   *string            `gorm:"column:signature" json:"-"`
	Status      GatewayEventStatus `gorm:"column:status;not null;default:'received'" json:"status"`
	Error       *string            `gorm:"column:error" json:"error,omitempty"`
	ReceivedAt  time.Time          `gorm:"column:received_at;not null" json:"received_at"`
	ProcessedAt *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time          `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PaymentGatewayEvent) TableName() string { return "payment_gateway_events" }
