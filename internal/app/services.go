package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/services"
)

type Services struct {
	Auth       services.AuthService
	Lessons    services.LessonCatalog
	Streaks    services.StreakService
	Enrollment services.EnrollmentService
	Progress   services.ProgressService
	Payments   services.PaymentService
	Expirer    *services.PaymentExpirer
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) Services {
	log.Info("Wiring services...")

	auth := services.NewAuthService(log, cfg.JWTSecretKey)
	catalog := services.NewLessonCatalog(db, log, reposet.Lesson)
	streaks := services.NewStreakService(db, log, reposet.LearningStats, cfg.StreakLocation())

	enrollment := services.NewEnrollmentService(db, log, catalog, reposet.Lesson, reposet.ProgressRecord)
	progress := services.NewProgressService(db, log, catalog, reposet.ProgressRecord, streaks, clients.Locker)
	payments := services.NewPaymentService(
		db,
		log,
		cfg.Payment,
		catalog,
		reposet.Lesson,
		reposet.ProgressRecord,
		reposet.PaymentAttempt,
		reposet.GatewayEvent,
		clients.Locker,
		clients.Gateways...,
	)

	return Services{
		Auth:       auth,
		Lessons:    catalog,
		Streaks:    streaks,
		Enrollment: enrollment,
		Progress:   progress,
		Payments:   payments,
		Expirer:    services.NewPaymentExpirer(log, payments, cfg.ExpiryInterval),
	}
}
