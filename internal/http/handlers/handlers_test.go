package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/gateway"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/services"
)

type fakeEnrollment struct {
	rec *types.ProgressRecord
	err error
}

func (f *fakeEnrollment) Enroll(_ context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error) {
	return f.rec, f.err
}
func (f *fakeEnrollment) GetProgress(_ context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error) {
	return f.rec, f.err
}
func (f *fakeEnrollment) ListEnrollments(_ context.Context, userID uuid.UUID) ([]*types.ProgressRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*types.ProgressRecord{f.rec}, nil
}

type fakeProgress struct {
	gotWatch, gotTotal float64
	err                error
}

func (f *fakeProgress) UpdateProgress(_ context.Context, userID, lessonID uuid.UUID, watch, total float64) (*types.ProgressRecord, error) {
	f.gotWatch, f.gotTotal = watch, total
	if f.err != nil {
		return nil, f.err
	}
	return &types.ProgressRecord{UserID: userID, LessonID: lessonID, WatchTimeSeconds: watch}, nil
}
func (f *fakeProgress) CompleteManually(_ context.Context, userID, lessonID uuid.UUID) (*types.ProgressRecord, error) {
	return &types.ProgressRecord{Status: types.ProgressStatusCompleted}, f.err
}
func (f *fakeProgress) RecordQuizAttempt(_ context.Context, userID, lessonID uuid.UUID, score, max float64) (*types.ProgressRecord, error) {
	return &types.ProgressRecord{}, f.err
}
func (f *fakeProgress) AddBookmark(_ context.Context, userID, lessonID uuid.UUID, pos float64, note string) (*types.ProgressRecord, error) {
	return &types.ProgressRecord{}, f.err
}

type fakePayments struct {
	webhookRes *services.WebhookResult
	err        error
	deadline   bool
}

func (f *fakePayments) CreateIntent(_ context.Context, userID, lessonID uuid.UUID, amount int64) (*services.PaymentIntent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.PaymentIntent{OrderID: "LP1", Amount: amount, PayURL: "https://pay.example/LP1"}, nil
}
func (f *fakePayments) ApplyWebhook(ctx context.Context, provider string, raw []byte) (*services.WebhookResult, error) {
	_, f.deadline = ctx.Deadline()
	return f.webhookRes, f.err
}
func (f *fakePayments) ExpireStale(context.Context, time.Time) (int, error) { return 0, nil }

func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestEnrollHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID, lessonID := uuid.New(), uuid.New()
	rec := &types.ProgressRecord{ID: uuid.New(), UserID: userID, LessonID: lessonID}

	cases := []struct {
		name       string
		svc        *fakeEnrollment
		path       string
		wantStatus int
	}{
		{name: "created", svc: &fakeEnrollment{rec: rec}, path: "/lessons/" + lessonID.String() + "/enroll", wantStatus: http.StatusCreated},
		{name: "already enrolled is informational", svc: &fakeEnrollment{rec: rec, err: pkgerrors.ErrAlreadyEnrolled}, path: "/lessons/" + lessonID.String() + "/enroll", wantStatus: http.StatusOK},
		{name: "unknown lesson", svc: &fakeEnrollment{err: pkgerrors.ErrNotFound}, path: "/lessons/" + lessonID.String() + "/enroll", wantStatus: http.StatusNotFound},
		{name: "bad id", svc: &fakeEnrollment{rec: rec}, path: "/lessons/not-a-uuid/enroll", wantStatus: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(asUser(userID))
			r.POST("/lessons/:id/enroll", NewEnrollmentHandler(tc.svc).Enroll)

			got := do(r, http.MethodPost, tc.path, nil)
			if got.Code != tc.wantStatus {
				t.Fatalf("status: want=%d got=%d body=%s", tc.wantStatus, got.Code, got.Body.String())
			}
		})
	}
}

func TestEnrollHandlerRequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/lessons/:id/enroll", NewEnrollmentHandler(&fakeEnrollment{}).Enroll)

	if got := do(r, http.MethodPost, "/lessons/"+uuid.NewString()+"/enroll", nil); got.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 got %d", got.Code)
	}
}

func TestUpdateProgressHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lessonID := uuid.New()
	path := "/lessons/" + lessonID.String() + "/progress"

	t.Run("passes zero watch time through", func(t *testing.T) {
		svc := &fakeProgress{}
		r := gin.New()
		r.Use(asUser(uuid.New()))
		r.PUT("/lessons/:id/progress", NewProgressHandler(svc).UpdateProgress)

		got := do(r, http.MethodPut, path, map[string]any{"watch_time_seconds": 0, "total_time_seconds": 600})
		if got.Code != http.StatusOK {
			t.Fatalf("want 200 got %d body=%s", got.Code, got.Body.String())
		}
		if svc.gotWatch != 0 || svc.gotTotal != 600 {
			t.Fatalf("service args: watch=%v total=%v", svc.gotWatch, svc.gotTotal)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		r := gin.New()
		r.Use(asUser(uuid.New()))
		r.PUT("/lessons/:id/progress", NewProgressHandler(&fakeProgress{}).UpdateProgress)

		if got := do(r, http.MethodPut, path, map[string]any{"watch_time_seconds": 10}); got.Code != http.StatusBadRequest {
			t.Fatalf("want 400 got %d", got.Code)
		}
	})

	t.Run("payment required maps to 403", func(t *testing.T) {
		r := gin.New()
		r.Use(asUser(uuid.New()))
		r.PUT("/lessons/:id/progress", NewProgressHandler(&fakeProgress{err: pkgerrors.ErrPaymentRequired}).UpdateProgress)

		got := do(r, http.MethodPut, path, map[string]any{"watch_time_seconds": 10, "total_time_seconds": 600})
		if got.Code != http.StatusForbidden {
			t.Fatalf("want 403 got %d", got.Code)
		}
	})
}

func TestCreateIntentHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := "/lessons/" + uuid.NewString() + "/payment-intents"

	cases := []struct {
		name       string
		svc        *fakePayments
		body       any
		wantStatus int
	}{
		{name: "created", svc: &fakePayments{}, body: map[string]any{"amount": 100000}, wantStatus: http.StatusCreated},
		{name: "zero amount", svc: &fakePayments{}, body: map[string]any{"amount": 0}, wantStatus: http.StatusBadRequest},
		{name: "already paid", svc: &fakePayments{err: pkgerrors.ErrAlreadyPaid}, body: map[string]any{"amount": 100000}, wantStatus: http.StatusConflict},
		{name: "gateway down", svc: &fakePayments{err: pkgerrors.ErrUpstreamUnavailable}, body: map[string]any{"amount": 100000}, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(asUser(uuid.New()))
			r.POST("/lessons/:id/payment-intents", NewPaymentHandler(logger.Nop(), tc.svc, "MOMOTEST").CreateIntent)

			if got := do(r, http.MethodPost, path, tc.body); got.Code != tc.wantStatus {
				t.Fatalf("want %d got %d body=%s", tc.wantStatus, got.Code, got.Body.String())
			}
		})
	}
}

func TestWebhookHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ev := &gateway.Event{OrderID: "LP1", RequestID: "req-1", Outcome: gateway.OutcomeSuccess}

	t.Run("momo ack", func(t *testing.T) {
		svc := &fakePayments{webhookRes: &services.WebhookResult{Event: ev, Outcome: ev.Outcome, Applied: true}}
		r := gin.New()
		r.POST("/payments/webhooks/:provider", NewPaymentHandler(logger.Nop(), svc, "MOMOTEST").Webhook)

		got := do(r, http.MethodPost, "/payments/webhooks/momo", map[string]any{"orderId": "LP1"})
		if got.Code != http.StatusOK {
			t.Fatalf("want 200 got %d", got.Code)
		}
		var ack map[string]any
		if err := json.Unmarshal(got.Body.Bytes(), &ack); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ack["partnerCode"] != "MOMOTEST" || ack["orderId"] != "LP1" || ack["requestId"] != "req-1" ||
			ack["resultCode"] != float64(0) || ack["message"] != "success" || ack["responseTime"] == nil {
			t.Fatalf("unexpected ack: %v", ack)
		}
	})

	t.Run("invalid signature is a generic rejection", func(t *testing.T) {
		svc := &fakePayments{err: pkgerrors.ErrInvalidSignature}
		r := gin.New()
		r.POST("/payments/webhooks/:provider", NewPaymentHandler(logger.Nop(), svc, "MOMOTEST").Webhook)

		got := do(r, http.MethodPost, "/payments/webhooks/momo", map[string]any{"orderId": "LP1"})
		if got.Code != http.StatusUnauthorized {
			t.Fatalf("want 401 got %d", got.Code)
		}
		var nack webhookNack
		_ = json.Unmarshal(got.Body.Bytes(), &nack)
		if nack.ResultCode == 0 || nack.Message != "rejected" {
			t.Fatalf("unexpected nack: %+v", nack)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		r := gin.New()
		r.POST("/payments/webhooks/:provider", NewPaymentHandler(logger.Nop(), &fakePayments{}, "MOMOTEST").Webhook)
		req := httptest.NewRequest(http.MethodPost, "/payments/webhooks/momo", http.NoBody)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400 got %d", rec.Code)
		}
	})
}

func TestServiceErrorRecordedOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var recorded int
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		recorded = len(c.Errors)
	})
	r.Use(asUser(uuid.New()))
	r.POST("/lessons/:id/enroll", NewEnrollmentHandler(&fakeEnrollment{err: errors.New("connection reset")}).Enroll)

	got := do(r, http.MethodPost, "/lessons/"+uuid.NewString()+"/enroll", nil)
	if got.Code != http.StatusInternalServerError {
		t.Fatalf("want 500 got %d", got.Code)
	}
	if recorded != 1 {
		t.Fatalf("internal error should be recorded once, got %d", recorded)
	}
}
