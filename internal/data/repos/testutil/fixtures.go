package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
)

func SeedLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, price int64, durationMinutes int) *types.Lesson {
	tb.Helper()
	l := &types.Lesson{
		ID:              uuid.New(),
		TeacherID:       uuid.New(),
		Title:           "lesson",
		Price:           price,
		DurationMinutes: durationMinutes,
		Status:          types.LessonStatusPublished,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed lesson: %v", err)
	}
	return l
}

func SeedDraftLesson(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.Lesson {
	tb.Helper()
	l := &types.Lesson{
		ID:              uuid.New(),
		TeacherID:       uuid.New(),
		Title:           "draft",
		DurationMinutes: 10,
		Status:          types.LessonStatusDraft,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed draft lesson: %v", err)
	}
	return l
}

func SeedProgressRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, lesson *types.Lesson, paid bool) *types.ProgressRecord {
	tb.Helper()
	now := time.Now().UTC()
	r := &types.ProgressRecord{
		ID:               uuid.New(),
		UserID:           userID,
		LessonID:         lesson.ID,
		Status:           types.ProgressStatusNotStarted,
		TotalTimeSeconds: lesson.TotalSeconds(),
		EnrolledAt:       now,
		Paid:             paid,
		PaymentMethod:    types.PaymentMethodPending,
	}
	if paid {
		r.PaymentMethod = types.PaymentMethodFree
		r.PaidAt = &now
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed progress record: %v", err)
	}
	return r
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }

func PtrString(v string) *string { return &v }
