package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/http"
	httpH "github.com/yungbote/lessonpay-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lessonpay-backend/internal/http/middleware"
	"github.com/yungbote/lessonpay-backend/internal/observability"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health     *httpH.HealthHandler
	Enrollment *httpH.EnrollmentHandler
	Progress   *httpH.ProgressHandler
	Payment    *httpH.PaymentHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, cfg Config, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(db),
		Enrollment: httpH.NewEnrollmentHandler(services.Enrollment),
		Progress:   httpH.NewProgressHandler(services.Progress),
		Payment:    httpH.NewPaymentHandler(log, services.Payments, cfg.Momo.PartnerCode),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireRouterConfig(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) http.RouterConfig {
	return http.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		ServiceName:       cfg.Otel.ServiceName,
		CORSOrigins:       cfg.CORSOrigins,
		WebhookTimeout:    cfg.WebhookTimeout,
		AuthMiddleware:    middleware.Auth,
		EnrollmentHandler: handlers.Enrollment,
		ProgressHandler:   handlers.Progress,
		PaymentHandler:    handlers.Payment,
		HealthHandler:     handlers.Health,
	}
}
