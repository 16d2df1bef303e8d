package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	httpH "github.com/yungbote/lessonpay-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lessonpay-backend/internal/http/middleware"
	"github.com/yungbote/lessonpay-backend/internal/observability"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/services"
)

type stubEnrollment struct{}

func (stubEnrollment) Enroll(_ context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error) {
	return &types.ProgressRecord{ID: uuid.New(), UserID: userID, LessonID: lessonID}, nil
}
func (stubEnrollment) GetProgress(context.Context, uuid.UUID, uuid.UUID) (*types.ProgressRecord, error) {
	return nil, pkgerrors.ErrNotFound
}
func (stubEnrollment) ListEnrollments(context.Context, uuid.UUID) ([]*types.ProgressRecord, error) {
	return nil, nil
}

type stubPayments struct{ called bool }

func (s *stubPayments) CreateIntent(context.Context, uuid.UUID, uuid.UUID, int64) (*services.PaymentIntent, error) {
	return nil, pkgerrors.ErrAlreadyPaid
}
func (s *stubPayments) ApplyWebhook(context.Context, string, []byte) (*services.WebhookResult, error) {
	s.called = true
	return nil, pkgerrors.ErrInvalidSignature
}
func (s *stubPayments) ExpireStale(context.Context, time.Time) (int, error) { return 0, nil }

func testRouter(t *testing.T, secret string, payments *stubPayments) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	return NewRouter(RouterConfig{
		Log:               log,
		Metrics:           observability.New(),
		WebhookTimeout:    time.Second,
		AuthMiddleware:    httpMW.NewAuthMiddleware(log, services.NewAuthService(log, secret)),
		EnrollmentHandler: httpH.NewEnrollmentHandler(stubEnrollment{}),
		PaymentHandler:    httpH.NewPaymentHandler(log, payments, "MOMOTEST"),
		HealthHandler:     httpH.NewHealthHandler(nil),
	})
}

func bearer(t *testing.T, secret string, userID uuid.UUID) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func TestRouterProtectsLearnerRoutes(t *testing.T) {
	r := testRouter(t, "s3cret", &stubPayments{})
	path := "/api/v1/lessons/" + uuid.NewString() + "/enroll"

	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: want 401 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", bearer(t, "wrong", uuid.New()))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: want 401 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", bearer(t, "s3cret", uuid.New()))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("valid token: want 201 got %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestRouterWebhookIsPublic(t *testing.T) {
	payments := &stubPayments{}
	r := testRouter(t, "s3cret", payments)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/momo", strings.NewReader(`{"orderId":"LP1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if !payments.called {
		t.Fatalf("webhook should reach the reconciler without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged webhook: want 401 got %d", rec.Code)
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	r := testRouter(t, "s3cret", &stubPayments{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Fatalf("metrics: %d %q", rec.Code, rec.Body.String())
	}
}
