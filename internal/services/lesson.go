package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/data/repos"
	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

const lessonLookupTimeout = 5 * time.Second

// LessonCatalog is the read side of the lesson catalog shared by enrollment,
// progress and payment. Concurrent lookups of the same lesson collapse into a
// single query.
type LessonCatalog interface {
	GetLesson(ctx context.Context, lessonID uuid.UUID) (*types.Lesson, error)
}

type lessonCatalog struct {
	db    *gorm.DB
	log   *logger.Logger
	repo  repos.LessonRepo
	group singleflight.Group
}

func NewLessonCatalog(db *gorm.DB, baseLog *logger.Logger, repo repos.LessonRepo) LessonCatalog {
	return &lessonCatalog{
		db:   db,
		log:  baseLog.With("service", "LessonCatalog"),
		repo: repo,
	}
}

// GetLesson returns ErrNotFound for unknown ids.
func (c *lessonCatalog) GetLesson(ctx context.Context, lessonID uuid.UUID) (*types.Lesson, error) {
	if lessonID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	// The shared query outlives any single caller; each caller still stops
	// waiting when its own ctx ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(lessonID.String(), func() (interface{}, error) {
		qctx, cancel := context.WithTimeout(shared, lessonLookupTimeout)
		defer cancel()
		return c.repo.GetByID(dbctx.Context{Ctx: qctx}, lessonID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	lesson, _ := res.Val.(*types.Lesson)
	if lesson == nil {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *lesson
	return &cp, nil
}
