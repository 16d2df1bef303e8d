package learning

import (
	"time"

	"github.com/google/uuid"
)

type LessonStatus string

const (
	LessonStatusDraft     LessonStatus = "draft"
	LessonStatusPublished LessonStatus = "published"
	LessonStatusArchived  LessonStatus = "archived"
)

// Lesson is the catalog view this service needs: pricing, duration and the
// aggregate counters it is allowed to bump.
type Lesson struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	TeacherID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"teacher_id"`
	Title           string       `gorm:"column:title;not null" json:"title"`
	Price           int64        `gorm:"column:price;not null;default:0" json:"price"`
	DurationMinutes int          `gorm:"column:duration_minutes;not null;default:0" json:"duration_minutes"`
	Status          LessonStatus `gorm:"column:status;not null;default:'draft';index" json:"status"`
	EnrollmentCount int64        `gorm:"column:enrollment_count;not null;default:0" json:"enrollment_count"`
	PurchaseCount   int64        `gorm:"column:purchase_count;not null;default:0" json:"purchase_count"`
	Revenue         int64        `gorm:"column:revenue;not null;default:0" json:"revenue"`
	CreatedAt       time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Lesson) TableName() string { return "lessons" }

func (l *Lesson) IsPaid() bool { return l != nil && l.Price > 0 }

func (l *Lesson) IsPublished() bool { return l != nil && l.Status == LessonStatusPublished }

// TotalSeconds is the expected watch length derived from the catalog duration.
func (l *Lesson) TotalSeconds() float64 {
	if l == nil || l.DurationMinutes <= 0 {
		return 0
	}
	return float64(l.DurationMinutes) * 60
}
