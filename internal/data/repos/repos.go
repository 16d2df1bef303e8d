package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/data/repos/learning"
	"github.com/yungbote/lessonpay-backend/internal/data/repos/payments"
	"github.com/yungbote/lessonpay-backend/internal/data/repos/user"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type LessonRepo = learning.LessonRepo
type ProgressRecordRepo = learning.ProgressRecordRepo

type LearningStatsRepo = user.LearningStatsRepo

type PaymentAttemptRepo = payments.PaymentAttemptRepo
type GatewayEventRepo = payments.GatewayEventRepo

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return learning.NewLessonRepo(db, baseLog)
}
func NewProgressRecordRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRecordRepo {
	return learning.NewProgressRecordRepo(db, baseLog)
}

func NewLearningStatsRepo(db *gorm.DB, baseLog *logger.Logger) LearningStatsRepo {
	return user.NewLearningStatsRepo(db, baseLog)
}

func NewPaymentAttemptRepo(db *gorm.DB, baseLog *logger.Logger) PaymentAttemptRepo {
	return payments.NewPaymentAttemptRepo(db, baseLog)
}
func NewGatewayEventRepo(db *gorm.DB, baseLog *logger.Logger) GatewayEventRepo {
	return payments.NewGatewayEventRepo(db, baseLog)
}
