package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lessonpay-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lessonpay-backend/internal/http/middleware"
	"github.com/yungbote/lessonpay-backend/internal/observability"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	CORSOrigins    []string
	WebhookTimeout time.Duration

	AuthMiddleware *httpMW.AuthMiddleware

	EnrollmentHandler *httpH.EnrollmentHandler
	ProgressHandler   *httpH.ProgressHandler
	PaymentHandler    *httpH.PaymentHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api/v1")

	// Gateway callbacks (public: authenticity comes from the signature)
	if cfg.PaymentHandler != nil {
		api.POST("/payments/webhooks/:provider", httpMW.Timeout(cfg.WebhookTimeout), cfg.PaymentHandler.Webhook)
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Enrollment
		if cfg.EnrollmentHandler != nil {
			protected.POST("/lessons/:id/enroll", cfg.EnrollmentHandler.Enroll)
			protected.GET("/lessons/:id/progress", cfg.EnrollmentHandler.GetProgress)
			protected.GET("/me/enrollments", cfg.EnrollmentHandler.ListEnrollments)
		}

		// Progress
		if cfg.ProgressHandler != nil {
			protected.PUT("/lessons/:id/progress", cfg.ProgressHandler.UpdateProgress)
			protected.POST("/lessons/:id/complete", cfg.ProgressHandler.Complete)
			protected.POST("/lessons/:id/quiz-attempts", cfg.ProgressHandler.RecordQuizAttempt)
			protected.POST("/lessons/:id/bookmarks", cfg.ProgressHandler.AddBookmark)
		}

		// Payments
		if cfg.PaymentHandler != nil {
			protected.POST("/lessons/:id/payment-intents", cfg.PaymentHandler.CreateIntent)
		}
	}

	return r
}
