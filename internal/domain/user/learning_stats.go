package user

import (
	"time"

	"github.com/google/uuid"
)

// UserLearningStats holds daily-completion streak state. LastActiveDate is a
// civil date encoded as midnight UTC.
type UserLearningStats struct {
	UserID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	CurrentStreak  int        `gorm:"column:current_streak;not null;default:0" json:"current_streak"`
	LongestStreak  int        `gorm:"column:longest_streak;not null;default:0" json:"longest_streak"`
	LastActiveDate *time.Time `gorm:"column:last_active_date;type:date" json:"last_active_date,omitempty"`
	Version        int64      `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt      time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UserLearningStats) TableName() string { return "user_learning_stats" }
