package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yungbote/lessonpay-backend/internal/data/repos"
	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/observability"
	"github.com/yungbote/lessonpay-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/pkg/strutil"
	"github.com/yungbote/lessonpay-backend/internal/platform/gateway"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/platform/redislock"
)

const (
	defaultIntentTTL     = 24 * time.Hour
	expiredFailureReason = "payment intent expired"
	expireBatchSize      = 100
	maxOrderInfoTitle    = 200
)

type PaymentConfig struct {
	// Provider is the adapter used for new intents. Webhooks are accepted
	// from every registered adapter so older orders still settle.
	Provider      string        `yaml:"provider"`
	ReturnURL     string        `yaml:"return_url"`
	NotifyBaseURL string        `yaml:"notify_base_url"`
	IntentTTL     time.Duration `yaml:"intent_ttl"`
}

type PaymentIntent struct {
	OrderID   string                `json:"order_id"`
	RequestID string                `json:"request_id"`
	Provider  string                `json:"provider"`
	Amount    int64                 `json:"amount"`
	PayURL    string                `json:"pay_url"`
	ExpiresAt time.Time             `json:"expires_at"`
	Record    *types.ProgressRecord `json:"progress,omitempty"`
}

type WebhookResult struct {
	Event   *gateway.Event
	Outcome gateway.Outcome
	// Applied is true only for the delivery that changed state.
	Applied bool
	Record  *types.ProgressRecord
}

type PaymentService interface {
	CreateIntent(ctx context.Context, userID, lessonID uuid.UUID, amount int64) (*PaymentIntent, error)
	// ApplyWebhook verifies raw with the provider's adapter before touching
	// any state, then applies the outcome at most once.
	ApplyWebhook(ctx context.Context, provider string, raw []byte) (*WebhookResult, error)
	// ExpireStale marks pending attempts past their deadline as expired and
	// returns how many it moved.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type paymentService struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      PaymentConfig
	catalog  LessonCatalog
	lessons  repos.LessonRepo
	records  repos.ProgressRecordRepo
	attempts repos.PaymentAttemptRepo
	events   repos.GatewayEventRepo
	adapters map[string]gateway.Adapter
	locker   redislock.Locker
	metrics  *observability.Metrics
}

func NewPaymentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg PaymentConfig,
	catalog LessonCatalog,
	lessons repos.LessonRepo,
	records repos.ProgressRecordRepo,
	attempts repos.PaymentAttemptRepo,
	events repos.GatewayEventRepo,
	locker redislock.Locker,
	adapters ...gateway.Adapter,
) PaymentService {
	if cfg.IntentTTL <= 0 {
		cfg.IntentTTL = defaultIntentTTL
	}
	byName := make(map[string]gateway.Adapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		byName[a.Provider()] = a
	}
	if cfg.Provider == "" && len(adapters) > 0 && adapters[0] != nil {
		cfg.Provider = adapters[0].Provider()
	}
	if locker == nil {
		locker = redislock.NewLocal()
	}
	return &paymentService{
		db:       db,
		log:      baseLog.With("service", "PaymentService"),
		cfg:      cfg,
		catalog:  catalog,
		lessons:  lessons,
		records:  records,
		attempts: attempts,
		events:   events,
		adapters: byName,
		locker:   locker,
		metrics:  observability.Current(),
	}
}

func (s *paymentService) CreateIntent(ctx context.Context, userID, lessonID uuid.UUID, amount int64) (*PaymentIntent, error) {
	ctx, span := observability.Tracer().Start(ctx, "payment.create_intent")
	defer span.End()

	if userID == uuid.Nil || lessonID == uuid.Nil || amount <= 0 {
		return nil, fmt.Errorf("user, lesson and a positive amount are required: %w", pkgerrors.ErrInvalidArgument)
	}
	adapter := s.adapters[s.cfg.Provider]
	if adapter == nil {
		return nil, fmt.Errorf("payment provider %q is not configured: %w", s.cfg.Provider, pkgerrors.ErrUpstreamUnavailable)
	}
	span.SetAttributes(attribute.String("payment.provider", adapter.Provider()))

	lesson, err := s.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.IsPaid() && amount != lesson.Price {
		return nil, fmt.Errorf("amount %d does not match lesson price %d: %w", amount, lesson.Price, pkgerrors.ErrInvalidArgument)
	}

	unlock, err := s.lockRecord(ctx, "create_intent", userID, lessonID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := time.Now().UTC()
	attempt := &types.PaymentAttempt{
		ID:        uuid.New(),
		OrderID:   newOrderID(),
		RequestID: uuid.NewString(),
		UserID:    userID,
		LessonID:  lessonID,
		Provider:  types.Provider(adapter.Provider()),
		Amount:    amount,
		Status:    types.AttemptStatusPending,
		ExpiresAt: now.Add(s.cfg.IntentTTL),
	}
	method := types.PaymentMethodPending
	if attempt.Provider == types.ProviderMomo {
		method = types.PaymentMethodMomo
	}
	providerName := adapter.Provider()

	var rec *types.ProgressRecord
	for i := 0; ; i++ {
		if i == versionMaxAttempts {
			s.metrics.IncVersionConflict("create_intent", "exhausted")
			return nil, fmt.Errorf("create intent: %w", pkgerrors.ErrConflict)
		}
		rec, err = s.records.GetByUserAndLesson(dbctx.Context{Ctx: ctx}, userID, lessonID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, pkgerrors.ErrNotFound
		}
		if rec.Paid {
			return nil, pkgerrors.ErrAlreadyPaid
		}
		attempt.ProgressRecordID = rec.ID

		stored := false
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			ok, err := s.records.UpdateVersioned(dbc, rec.ID, rec.Version, map[string]interface{}{
				"payment_method":   method,
				"payment_provider": providerName,
				"order_id":         attempt.OrderID,
				"failure_reason":   nil,
			})
			if err != nil || !ok {
				return err
			}
			if _, err := s.attempts.Create(dbc, attempt); err != nil {
				return err
			}
			stored = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("create intent: %w", err)
		}
		if stored {
			break
		}
		s.metrics.IncVersionConflict("create_intent", "retried")
	}

	resp, err := adapter.CreatePayment(ctx, gateway.PaymentRequest{
		OrderID:   attempt.OrderID,
		RequestID: attempt.RequestID,
		Amount:    amount,
		OrderInfo: orderInfo(lesson),
		UserID:    userID,
		LessonID:  lessonID,
		ReturnURL: s.cfg.ReturnURL,
		NotifyURL: s.notifyURL(providerName),
	})
	if err != nil {
		// the attempt stays pending and is swept by the expirer
		s.metrics.IncPaymentIntent(providerName, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway create payment failed")
		s.log.WithContext(ctx).Warn("Gateway rejected payment intent",
			"provider", providerName,
			"order_id", attempt.OrderID,
			"user_id", userID,
			"lesson_id", lessonID,
			"error", err,
		)
		return nil, err
	}
	if err := s.attempts.SetPayURL(dbctx.Context{Ctx: ctx}, attempt.OrderID, resp.PayURL); err != nil {
		s.log.WithContext(ctx).Warn("Failed to store pay url", "order_id", attempt.OrderID, "error", err)
	}
	s.metrics.IncPaymentIntent(providerName, "created")
	s.log.WithContext(ctx).Info("Payment intent created",
		"provider", providerName,
		"order_id", attempt.OrderID,
		"user_id", userID,
		"lesson_id", lessonID,
		"amount", amount,
	)

	out, err := s.records.GetByID(dbctx.Context{Ctx: ctx}, rec.ID)
	if err != nil {
		return nil, err
	}
	return &PaymentIntent{
		OrderID:   attempt.OrderID,
		RequestID: attempt.RequestID,
		Provider:  providerName,
		Amount:    amount,
		PayURL:    resp.PayURL,
		ExpiresAt: attempt.ExpiresAt,
		Record:    out,
	}, nil
}

func (s *paymentService) ApplyWebhook(ctx context.Context, provider string, raw []byte) (res *WebhookResult, err error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "payment.apply_webhook")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", provider))

	outcome := "error"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.ObserveWebhook(provider, outcome, time.Since(start))
	}()

	adapter := s.adapters[provider]
	if adapter == nil {
		outcome = "unknown_provider"
		return nil, fmt.Errorf("unknown payment provider %q: %w", provider, pkgerrors.ErrNotFound)
	}

	ev, err := adapter.ParseNotification(ctx, raw)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidSignature) {
			outcome = "invalid_signature"
			s.metrics.IncSecurityEvent("invalid_signature")
			s.log.WithContext(ctx).Error("Security event: webhook signature rejected",
				"provider", provider,
				"remote_payload_bytes", len(raw),
				"error", err,
			)
			return nil, pkgerrors.ErrInvalidSignature
		}
		outcome = "invalid_payload"
		return nil, err
	}
	span.SetAttributes(
		attribute.String("payment.order_id", ev.OrderID),
		attribute.String("payment.outcome", string(ev.Outcome)),
	)

	event, err := s.events.Create(dbctx.Context{Ctx: ctx}, &types.PaymentGatewayEvent{
		Provider:   types.Provider(provider),
		OrderID:    ev.OrderID,
		TransID:    optionalString(ev.TransID),
		ResultCode: ev.ResultCode,
		Amount:     ev.Amount,
		Payload:    raw,
		Signature:  optionalString(ev.Signature),
		Status:     types.GatewayEventStatusReceived,
	})
	if err != nil {
		return nil, fmt.Errorf("record gateway event: %w", err)
	}
	finish := func(status types.GatewayEventStatus, msg string) {
		if mErr := s.events.MarkStatus(dbctx.Context{Ctx: ctx}, event.ID, status, msg); mErr != nil {
			s.log.WithContext(ctx).Warn("Failed to mark gateway event", "event_id", event.ID, "error", mErr)
		}
	}

	attempt, err := s.attempts.GetByOrderID(dbctx.Context{Ctx: ctx}, ev.OrderID)
	if err != nil {
		finish(types.GatewayEventStatusFailed, err.Error())
		return nil, err
	}
	if attempt == nil || string(attempt.Provider) != provider ||
		attempt.UserID != ev.UserID || attempt.LessonID != ev.LessonID {
		outcome = "not_found"
		finish(types.GatewayEventStatusFailed, "no matching payment attempt")
		s.log.WithContext(ctx).Warn("Webhook for unknown order", "provider", provider, "order_id", ev.OrderID)
		return nil, fmt.Errorf("order %s: %w", ev.OrderID, pkgerrors.ErrNotFound)
	}

	unlock, err := s.lockRecord(ctx, "apply_webhook", attempt.UserID, attempt.LessonID)
	if err != nil {
		finish(types.GatewayEventStatusFailed, err.Error())
		return nil, err
	}
	defer unlock()

	rec, err := s.records.GetByID(dbctx.Context{Ctx: ctx}, attempt.ProgressRecordID)
	if err != nil {
		finish(types.GatewayEventStatusFailed, err.Error())
		return nil, err
	}
	if rec == nil {
		outcome = "not_found"
		finish(types.GatewayEventStatusFailed, "progress record missing")
		return nil, fmt.Errorf("progress record for order %s: %w", ev.OrderID, pkgerrors.ErrNotFound)
	}

	res = &WebhookResult{Event: ev, Outcome: ev.Outcome, Record: rec}
	if rec.Paid {
		outcome = "duplicate"
		finish(types.GatewayEventStatusIgnored, "already paid")
		if ev.Outcome == gateway.OutcomeSuccess && rec.OrderID != nil && *rec.OrderID != ev.OrderID {
			s.log.WithContext(ctx).Warn("Success for a second order on a paid record",
				"provider", provider,
				"order_id", ev.OrderID,
				"paid_order_id", *rec.OrderID,
				"user_id", rec.UserID,
				"lesson_id", rec.LessonID,
			)
		}
		return res, nil
	}

	switch ev.Outcome {
	case gateway.OutcomeSuccess:
		res.Applied, err = s.applySuccess(ctx, attempt, rec, ev)
	case gateway.OutcomeFailure:
		res.Applied, err = s.applyFailure(ctx, attempt, rec, ev)
	default:
		outcome = "ignored"
		finish(types.GatewayEventStatusIgnored, "intermediate status")
		return res, nil
	}
	if err != nil {
		finish(types.GatewayEventStatusFailed, err.Error())
		return nil, err
	}

	outcome = string(ev.Outcome)
	if res.Applied {
		finish(types.GatewayEventStatusProcessed, "")
	} else {
		outcome = "duplicate"
		finish(types.GatewayEventStatusIgnored, "no state change")
	}

	updated, err := s.records.GetByID(dbctx.Context{Ctx: ctx}, rec.ID)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		res.Record = updated
	}
	s.log.WithContext(ctx).Info("Webhook applied",
		"provider", provider,
		"order_id", ev.OrderID,
		"outcome", ev.Outcome,
		"applied", res.Applied,
		"user_id", rec.UserID,
		"lesson_id", rec.LessonID,
	)
	return res, nil
}

// applySuccess flips paid exactly once and credits the lesson with the
// amount the gateway reported. A late success still lands on an expired or
// failed attempt because the money has moved.
func (s *paymentService) applySuccess(ctx context.Context, attempt *types.PaymentAttempt, rec *types.ProgressRecord, ev *gateway.Event) (bool, error) {
	if ev.Amount != attempt.Amount {
		s.log.WithContext(ctx).Warn("Gateway amount differs from requested amount",
			"order_id", ev.OrderID,
			"requested", attempt.Amount,
			"reported", ev.Amount,
		)
	}
	now := time.Now().UTC()
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := s.records.MarkPaid(dbc, rec.ID, map[string]interface{}{
			"paid_at":          now,
			"transaction_id":   optionalString(ev.TransID),
			"amount":           ev.Amount,
			"payment_method":   paymentMethodFor(ev.Method),
			"payment_provider": ev.Provider,
			"order_id":         ev.OrderID,
			"failure_reason":   nil,
		})
		if err != nil || !ok {
			return err
		}
		applied = true
		if err := s.lessons.IncrementPurchase(dbc, rec.LessonID, ev.Amount); err != nil {
			return err
		}
		_, err = s.attempts.Transition(dbc, ev.OrderID,
			[]types.AttemptStatus{types.AttemptStatusPending, types.AttemptStatusExpired, types.AttemptStatusFailed},
			types.AttemptStatusSucceeded,
			map[string]interface{}{
				"gateway_trans_id": optionalString(ev.TransID),
				"failure_reason":   nil,
				"resolved_at":      now,
			})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("apply payment success: %w", err)
	}
	return applied, nil
}

// applyFailure only resolves a pending attempt. A failure for an attempt that
// already expired or was superseded changes nothing.
func (s *paymentService) applyFailure(ctx context.Context, attempt *types.PaymentAttempt, rec *types.ProgressRecord, ev *gateway.Event) (bool, error) {
	reason := strings.TrimSpace(ev.Message)
	if reason == "" {
		reason = "payment failed (code " + ev.ResultCode + ")"
	}
	now := time.Now().UTC()
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := s.attempts.Transition(dbc, attempt.OrderID,
			[]types.AttemptStatus{types.AttemptStatusPending},
			types.AttemptStatusFailed,
			map[string]interface{}{
				"gateway_trans_id": optionalString(ev.TransID),
				"failure_reason":   reason,
				"resolved_at":      now,
			})
		if err != nil || !ok {
			return err
		}
		applied = true
		_, err = s.records.UpdateUnpaidOrder(dbc, rec.ID, attempt.OrderID, map[string]interface{}{
			"failure_reason": reason,
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("apply payment failure: %w", err)
	}
	return applied, nil
}

func (s *paymentService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.attempts.ListExpiredPending(dbctx.Context{Ctx: ctx}, now, expireBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, a := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		moved := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			ok, err := s.attempts.Transition(dbc, a.OrderID,
				[]types.AttemptStatus{types.AttemptStatusPending},
				types.AttemptStatusExpired,
				map[string]interface{}{
					"failure_reason": expiredFailureReason,
					"resolved_at":    now,
				})
			if err != nil || !ok {
				return err
			}
			moved = true
			_, err = s.records.UpdateUnpaidOrder(dbc, a.ProgressRecordID, a.OrderID, map[string]interface{}{
				"failure_reason": expiredFailureReason,
				"payment_method": types.PaymentMethodPending,
			})
			return err
		})
		if err != nil {
			s.log.WithContext(ctx).Warn("Failed to expire payment attempt", "order_id", a.OrderID, "error", err)
			continue
		}
		if moved {
			expired++
			s.metrics.IncIntentExpired(string(a.Provider))
		}
	}
	if expired > 0 {
		s.log.WithContext(ctx).Info("Expired stale payment intents", "count", expired)
	}
	return expired, nil
}

func (s *paymentService) lockRecord(ctx context.Context, op string, userID, lessonID uuid.UUID) (func(), error) {
	unlock, err := s.locker.Lock(ctx, recordLockKey(userID, lessonID))
	if err == nil {
		return unlock, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	s.log.WithContext(ctx).Warn("Record lock unavailable, relying on guarded writes", "op", op, "error", err)
	return func() {}, nil
}

func (s *paymentService) notifyURL(provider string) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.NotifyBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/webhooks/" + provider
}

func newOrderID() string {
	return "LP" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func orderInfo(lesson *types.Lesson) string {
	title := strings.TrimSpace(lesson.Title)
	if title == "" {
		return "Lesson " + lesson.ID.String()
	}
	return "Lesson: " + strutil.Truncate(title, maxOrderInfoTitle)
}

func paymentMethodFor(method string) types.PaymentMethod {
	switch types.PaymentMethod(method) {
	case types.PaymentMethodMomo, types.PaymentMethodCard, types.PaymentMethodBank,
		types.PaymentMethodWallet, types.PaymentMethodPaypal:
		return types.PaymentMethod(method)
	default:
		return types.PaymentMethodWallet
	}
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
