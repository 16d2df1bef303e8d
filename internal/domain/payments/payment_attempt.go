package payments

import (
	"time"

	"github.com/google/uuid"
)

type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusFailed    AttemptStatus = "failed"
	AttemptStatusExpired   AttemptStatus = "expired"
)

type Provider string

const (
	ProviderMomo     Provider = "momo"
	ProviderMidtrans Provider = "midtrans"
)

// PaymentAttempt is one outbound charge request. OrderID is the identifier we
// hand to the gateway and the key every callback is matched on.
type PaymentAttempt struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID          string        `gorm:"column:order_id;not null;uniqueIndex" json:"order_id"`
	RequestID        string        `gorm:"column:request_id;not null" json:"request_id"`
	ProgressRecordID uuid.UUID     `gorm:"type:uuid;not null;index" json:"progress_record_id"`
	UserID           uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	LessonID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"lesson_id"`
	Provider         Provider      `gorm:"column:provider;not null" json:"provider"`
	Amount           int64         `gorm:"column:amount;not null" json:"amount"`
	Status           AttemptStatus `gorm:"column:status;not null;default:'pending';index:idx_attempt_status_expiry,priority:1" json:"status"`
	GatewayTransID   *string       `gorm:"column:gateway_trans_id" json:"gateway_trans_id,omitempty"`
	PayURL           *string       `gorm:"column:pay_url" json:"pay_url,omitempty"`
	FailureReason    *string       `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	ExpiresAt        time.Time     `gorm:"column:expires_at;not null;index:idx_attempt_status_expiry,priority:2" json:"expires_at"`
	ResolvedAt       *time.Time    `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

func (a *PaymentAttempt) IsTerminal() bool {
	if a == nil {
		return false
	}
	return a.Status == AttemptStatusSucceeded || a.Status == AttemptStatusFailed
}
