package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/data/repos"
	"github.com/yungbote/lessonpay-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	"github.com/yungbote/lessonpay-backend/internal/platform/gateway"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/platform/momo"
	"github.com/yungbote/lessonpay-backend/internal/platform/redislock"
)

const (
	testPartnerCode = "MOMOTEST"
	testAccessKey   = "access"
	testSecretKey   = "secret"
)

// fakeGateway issues pay urls locally and verifies notifications with the
// real MoMo signer.
type fakeGateway struct {
	verifier *momo.Client

	mu        sync.Mutex
	createErr error
	requests  []gateway.PaymentRequest
}

func (g *fakeGateway) Provider() string { return momo.ProviderName }

func (g *fakeGateway) CreatePayment(_ context.Context, req gateway.PaymentRequest) (*gateway.PaymentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.PaymentResponse{PayURL: "https://pay.example/" + req.OrderID, ResultCode: "0"}, nil
}

func (g *fakeGateway) ParseNotification(ctx context.Context, raw []byte) (*gateway.Event, error) {
	return g.verifier.ParseNotification(ctx, raw)
}

type harness struct {
	ctx      context.Context
	db       *gorm.DB
	lessons  repos.LessonRepo
	records  repos.ProgressRecordRepo
	stats    repos.LearningStatsRepo
	attempts repos.PaymentAttemptRepo
	events   repos.GatewayEventRepo
	gw       *fakeGateway

	enrollment EnrollmentService
	progress   ProgressService
	streaks    StreakService
	payments   PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	verifier, err := momo.New(logger.Nop(), momo.Config{
		PartnerCode: testPartnerCode,
		AccessKey:   testAccessKey,
		SecretKey:   testSecretKey,
	})
	if err != nil {
		t.Fatalf("momo.New: %v", err)
	}

	h := &harness{
		ctx:      context.Background(),
		db:       db,
		lessons:  repos.NewLessonRepo(db, log),
		records:  repos.NewProgressRecordRepo(db, log),
		stats:    repos.NewLearningStatsRepo(db, log),
		attempts: repos.NewPaymentAttemptRepo(db, log),
		events:   repos.NewGatewayEventRepo(db, log),
		gw:       &fakeGateway{verifier: verifier},
	}
	locker := redislock.NewLocal()
	catalog := NewLessonCatalog(db, log, h.lessons)
	h.streaks = NewStreakService(db, log, h.stats, time.UTC)
	h.enrollment = NewEnrollmentService(db, log, catalog, h.lessons, h.records)
	h.progress = NewProgressService(db, log, catalog, h.records, h.streaks, locker)
	h.payments = NewPaymentService(db, log, PaymentConfig{
		Provider:      momo.ProviderName,
		ReturnURL:     "https://app.example/return",
		NotifyBaseURL: "https://api.example/api/v1/payments",
		IntentTTL:     time.Hour,
	}, catalog, h.lessons, h.records, h.attempts, h.events, locker, h.gw)
	return h
}

func (h *harness) lesson(t *testing.T, price int64, minutes int) *types.Lesson {
	t.Helper()
	return testutil.SeedLesson(t, h.ctx, h.db, price, minutes)
}

func (h *harness) enroll(t *testing.T, userID uuid.UUID, lesson *types.Lesson) *types.ProgressRecord {
	t.Helper()
	rec, err := h.enrollment.Enroll(h.ctx, userID, lesson.ID)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	return rec
}

func (h *harness) reloadLesson(t *testing.T, id uuid.UUID) *types.Lesson {
	t.Helper()
	l, err := h.lessons.GetByID(dbctx.Context{Ctx: h.ctx}, id)
	if err != nil || l == nil {
		t.Fatalf("reload lesson: %v", err)
	}
	return l
}

func (h *harness) reloadRecord(t *testing.T, id uuid.UUID) *types.ProgressRecord {
	t.Helper()
	r, err := h.records.GetByID(dbctx.Context{Ctx: h.ctx}, id)
	if err != nil || r == nil {
		t.Fatalf("reload record: %v", err)
	}
	return r
}

func (h *harness) attempt(t *testing.T, orderID string) *types.PaymentAttempt {
	t.Helper()
	a, err := h.attempts.GetByOrderID(dbctx.Context{Ctx: h.ctx}, orderID)
	if err != nil || a == nil {
		t.Fatalf("load attempt %s: %v", orderID, err)
	}
	return a
}

func (h *harness) countRecords(t *testing.T, userID, lessonID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&types.ProgressRecord{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Count(&n).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	return n
}

func momoNotification(t *testing.T, orderID string, userID, lessonID uuid.UUID, resultCode int, amount int64) momo.Notification {
	t.Helper()
	extra, err := momo.EncodeExtraData(momo.ExtraData{UserID: userID.String(), LessonID: lessonID.String()})
	if err != nil {
		t.Fatalf("EncodeExtraData: %v", err)
	}
	msg := "Successful."
	if resultCode != 0 {
		msg = "Transaction denied by user."
	}
	n := momo.Notification{
		PartnerCode:  testPartnerCode,
		OrderID:      orderID,
		RequestID:    "req-" + orderID,
		Amount:       amount,
		OrderInfo:    "Lesson",
		OrderType:    "momo_wallet",
		TransID:      4088878653,
		ResultCode:   resultCode,
		Message:      msg,
		PayType:      "qr",
		ResponseTime: 1721720663942,
		ExtraData:    extra,
	}
	n.Signature = momo.Sign(testSecretKey, momo.NotificationSignaturePayload(testAccessKey, n))
	return n
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func dbctxFor(h *harness) dbctx.Context { return dbctx.Context{Ctx: h.ctx} }
