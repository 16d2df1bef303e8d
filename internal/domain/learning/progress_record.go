package learning

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProgressStatus string

const (
	ProgressStatusNotStarted ProgressStatus = "not_started"
	ProgressStatusInProgress ProgressStatus = "in_progress"
	ProgressStatusCompleted  ProgressStatus = "completed"
)

// rank orders statuses along the only allowed direction of travel.
func (s ProgressStatus) rank() int {
	switch s {
	case ProgressStatusInProgress:
		return 1
	case ProgressStatusCompleted:
		return 2
	default:
		return 0
	}
}

// Before reports whether s comes strictly before other in the watch lifecycle.
func (s ProgressStatus) Before(other ProgressStatus) bool { return s.rank() < other.rank() }

type PaymentMethod string

const (
	PaymentMethodFree    PaymentMethod = "free"
	PaymentMethodCard    PaymentMethod = "card"
	PaymentMethodBank    PaymentMethod = "bank"
	PaymentMethodWallet  PaymentMethod = "wallet"
	PaymentMethodPaypal  PaymentMethod = "paypal"
	PaymentMethodMomo    PaymentMethod = "momo"
	PaymentMethodPending PaymentMethod = "pending"
)

// ProgressRecord is the single (user, lesson) row tying together enrollment,
// watch state and payment settlement.
type ProgressRecord struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_lesson,priority:1" json:"user_id"`
	LessonID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_lesson,priority:2;index" json:"lesson_id"`

	Status             ProgressStatus `gorm:"column:status;not null;default:'not_started'" json:"status"`
	WatchTimeSeconds   float64        `gorm:"column:watch_time_seconds;not null;default:0" json:"watch_time_seconds"`
	TotalTimeSeconds   float64        `gorm:"column:total_time_seconds;not null;default:0" json:"total_time_seconds"`
	ProgressPercentage int            `gorm:"column:progress_percentage;not null;default:0" json:"progress_percentage"`

	EnrolledAt     time.Time  `gorm:"column:enrolled_at;not null" json:"enrolled_at"`
	StartedAt      *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	LastAccessedAt *time.Time `gorm:"column:last_accessed_at" json:"last_accessed_at,omitempty"`

	Paid            bool          `gorm:"column:paid;not null;default:false" json:"paid"`
	Amount          int64         `gorm:"column:amount;not null;default:0" json:"amount"`
	PaymentMethod   PaymentMethod `gorm:"column:payment_method;not null;default:'pending'" json:"payment_method"`
	PaymentProvider *string       `gorm:"column:payment_provider" json:"payment_provider,omitempty"`
	OrderID         *string       `gorm:"column:order_id;index" json:"order_id,omitempty"`
	TransactionID   *string       `gorm:"column:transaction_id" json:"transaction_id,omitempty"`
	PaidAt          *time.Time    `gorm:"column:paid_at" json:"paid_at,omitempty"`
	FailureReason   *string       `gorm:"column:failure_reason" json:"failure_reason,omitempty"`

	QuizAttempts datatypes.JSON `gorm:"type:jsonb;column:quiz_attempts" json:"quiz_attempts"`
	BestScore    *float64       `gorm:"column:best_score" json:"best_score,omitempty"`
	Bookmarks    datatypes.JSON `gorm:"type:jsonb;column:bookmarks" json:"bookmarks"`

	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (ProgressRecord) TableName() string { return "progress_records" }

type QuizAttemptEntry struct {
	Score       float64   `json:"score"`
	MaxScore    float64   `json:"max_score"`
	Percentage  float64   `json:"percentage"`
	AttemptedAt time.Time `json:"attempted_at"`
}

type Bookmark struct {
	PositionSeconds float64   `json:"position_seconds"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r *ProgressRecord) QuizAttemptList() ([]QuizAttemptEntry, error) {
	out := []QuizAttemptEntry{}
	if r == nil || len(r.QuizAttempts) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.QuizAttempts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ProgressRecord) BookmarkList() ([]Bookmark, error) {
	out := []Bookmark{}
	if r == nil || len(r.Bookmarks) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.Bookmarks, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ProgressRecord) IsCompleted() bool {
	return r != nil && r.Status == ProgressStatusCompleted
}
