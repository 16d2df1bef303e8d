package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/data/repos"
	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/observability"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type EnrollmentService interface {
	// Enroll creates the learner's progress record. When one already exists it
	// is returned together with ErrAlreadyEnrolled.
	Enroll(ctx context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error)
	GetProgress(ctx context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error)
	ListEnrollments(ctx context.Context, userID uuid.UUID) ([]*types.ProgressRecord, error)
}

type enrollmentService struct {
	db      *gorm.DB
	log     *logger.Logger
	catalog LessonCatalog
	lessons repos.LessonRepo
	records repos.ProgressRecordRepo
	metrics *observability.Metrics
}

func NewEnrollmentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	catalog LessonCatalog,
	lessons repos.LessonRepo,
	records repos.ProgressRecordRepo,
) EnrollmentService {
	return &enrollmentService{
		db:      db,
		log:     baseLog.With("service", "EnrollmentService"),
		catalog: catalog,
		lessons: lessons,
		records: records,
		metrics: observability.Current(),
	}
}

func (s *enrollmentService) Enroll(ctx context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error) {
	if userID == uuid.Nil || lessonID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	lesson, err := s.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if !lesson.IsPublished() {
		return nil, pkgerrors.ErrNotFound
	}

	now := time.Now().UTC()
	row := &types.ProgressRecord{
		ID:               uuid.New(),
		UserID:           userID,
		LessonID:         lessonID,
		Status:           types.ProgressStatusNotStarted,
		TotalTimeSeconds: lesson.TotalSeconds(),
		EnrolledAt:       now,
		PaymentMethod:    types.PaymentMethodPending,
	}
	if !lesson.IsPaid() {
		row.Paid = true
		row.PaymentMethod = types.PaymentMethodFree
		row.PaidAt = &now
	}

	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := s.records.CreateIfAbsent(dbc, row)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		created = true
		return s.lessons.IncrementEnrollment(dbc, lessonID, row.Amount)
	})
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	if !created {
		existing, err := s.records.GetByUserAndLesson(dbctx.Context{Ctx: ctx}, userID, lessonID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			// the conflicting row vanished between insert and read
			return nil, fmt.Errorf("enroll: %w", pkgerrors.ErrConflict)
		}
		s.metrics.IncEnrollment("duplicate")
		return existing, pkgerrors.ErrAlreadyEnrolled
	}

	kind := "free"
	if lesson.IsPaid() {
		kind = "paid"
	}
	s.metrics.IncEnrollment(kind)
	s.log.WithContext(ctx).Info("Enrolled", "user_id", userID, "lesson_id", lessonID, "paid", row.Paid)
	return row, nil
}

func (s *enrollmentService) GetProgress(ctx context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error) {
	if userID == uuid.Nil || lessonID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	rec, err := s.records.GetByUserAndLesson(dbctx.Context{Ctx: ctx}, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, pkgerrors.ErrNotFound
	}
	return rec, nil
}

func (s *enrollmentService) ListEnrollments(ctx context.Context, userID uuid.UUID) ([]*types.ProgressRecord, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	return s.records.ListByUser(dbctx.Context{Ctx: ctx}, userID, 0)
}
