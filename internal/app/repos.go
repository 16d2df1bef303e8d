package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/data/repos"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type Repos struct {
	Lesson         repos.LessonRepo
	ProgressRecord repos.ProgressRecordRepo
	LearningStats  repos.LearningStatsRepo
	PaymentAttempt repos.PaymentAttemptRepo
	GatewayEvent   repos.GatewayEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Lesson:         repos.NewLessonRepo(db, log),
		ProgressRecord: repos.NewProgressRecordRepo(db, log),
		LearningStats:  repos.NewLearningStatsRepo(db, log),
		PaymentAttempt: repos.NewPaymentAttemptRepo(db, log),
		GatewayEvent:   repos.NewGatewayEventRepo(db, log),
	}
}
