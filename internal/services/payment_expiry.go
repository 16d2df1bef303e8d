package services

import (
	"context"
	"time"

	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

const defaultExpiryInterval = 5 * time.Minute

// PaymentExpirer periodically sweeps pending intents whose deadline passed.
type PaymentExpirer struct {
	log      *logger.Logger
	payments PaymentService
	interval time.Duration
	now      func() time.Time
}

func NewPaymentExpirer(baseLog *logger.Logger, payments PaymentService, interval time.Duration) *PaymentExpirer {
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	return &PaymentExpirer{
		log:      baseLog.With("component", "PaymentExpirer"),
		payments: payments,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is done. It sweeps once at startup so intents that
// expired while the service was down do not wait a full interval.
func (e *PaymentExpirer) Run(ctx context.Context) error {
	e.log.Info("Starting payment expirer", "interval", e.interval.String())
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("Payment expirer stopped")
			return nil
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *PaymentExpirer) sweep(ctx context.Context) {
	n, err := e.payments.ExpireStale(ctx, e.now())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.log.Warn("ExpireStale failed", "error", err)
		return
	}
	if n > 0 {
		e.log.Debug("Expired payment intents", "count", n)
	}
}
