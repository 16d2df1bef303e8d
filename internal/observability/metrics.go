package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	"github.com/yungbote/lessonpay-backend/internal/platform/envutil"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests      *CounterVec
	apiLatency       *HistogramVec
	apiInflight      *Gauge
	enrollments      *CounterVec
	completions      *CounterVec
	versionConflicts *CounterVec
	paymentIntents   *CounterVec
	webhooks         *CounterVec
	webhookLatency   *HistogramVec
	securityEvents   *CounterVec
	intentsExpired   *CounterVec
	pendingAttempts  *Gauge
	pgStats          *GaugeVec
	redisUp          *Gauge
	redisPing        *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current is nil unless Init ran with metrics enabled; every method is nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics registry initialized")
		}
	})
	return instance
}

// New builds an unregistered registry. Init is the process-wide entry point.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("lp_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"lp_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		apiInflight:      NewGauge("lp_api_inflight_requests", "In-flight API requests."),
		enrollments:      NewCounterVec("lp_enrollments_total", "Enrollment attempts by kind (free, paid, duplicate).", []string{"kind"}),
		completions:      NewCounterVec("lp_lesson_completions_total", "Lessons transitioned into completed, by source.", []string{"source"}),
		versionConflicts: NewCounterVec("lp_version_conflicts_total", "Optimistic version conflicts by operation and result.", []string{"op", "result"}),
		paymentIntents:   NewCounterVec("lp_payment_intents_total", "Payment intents by provider and status.", []string{"provider", "status"}),
		webhooks:         NewCounterVec("lp_payment_webhooks_total", "Gateway notifications by provider and outcome.", []string{"provider", "outcome"}),
		webhookLatency: NewHistogramVec(
			"lp_payment_webhook_duration_seconds",
			"Gateway notification handling latency in seconds.",
			[]string{"provider"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		securityEvents:  NewCounterVec("lp_security_events_total", "Security events by type.", []string{"event"}),
		intentsExpired:  NewCounterVec("lp_payment_intents_expired_total", "Pending payment intents expired by the sweeper.", []string{"provider"}),
		pendingAttempts: NewGauge("lp_payment_attempts_pending", "Payment attempts currently pending."),
		pgStats:         NewGaugeVec("lp_postgres_pool", "database/sql pool statistics.", []string{"stat"}),
		redisUp:         NewGauge("lp_redis_up", "1 when the record-lock Redis answered the last ping."),
		redisPing:       NewGauge("lp_redis_ping_seconds", "Last Redis ping latency in seconds."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.enrollments, m.completions, m.versionConflicts,
		m.paymentIntents, m.webhooks, m.webhookLatency,
		m.securityEvents, m.intentsExpired, m.pendingAttempts,
		m.pgStats, m.redisUp, m.redisPing,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Add(1)
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Add(-1)
}

func (m *Metrics) IncEnrollment(kind string) {
	if m == nil {
		return
	}
	m.enrollments.Inc(kind)
}

func (m *Metrics) IncCompletion(source string) {
	if m == nil {
		return
	}
	m.completions.Inc(source)
}

// IncVersionConflict counts a lost optimistic write. result is "retried" or
// "exhausted".
func (m *Metrics) IncVersionConflict(op, result string) {
	if m == nil {
		return
	}
	m.versionConflicts.Inc(op, result)
}

func (m *Metrics) IncPaymentIntent(provider, status string) {
	if m == nil {
		return
	}
	m.paymentIntents.Inc(provider, status)
}

func (m *Metrics) ObserveWebhook(provider, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.webhooks.Inc(provider, outcome)
	m.webhookLatency.Observe(dur.Seconds(), provider)
}

func (m *Metrics) WebhookCount(provider, outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.webhooks.Value(provider, outcome)
}

func (m *Metrics) IncSecurityEvent(event string) {
	if m == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		event = "unknown"
	}
	m.securityEvents.Inc(event)
}

func (m *Metrics) SecurityEventCount(event string) float64 {
	if m == nil {
		return 0
	}
	return m.securityEvents.Value(event)
}

func (m *Metrics) IncIntentExpired(provider string) {
	if m == nil {
		return
	}
	m.intentsExpired.Inc(provider)
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")

				var pending int64
				if err := db.WithContext(ctx).
					Model(&types.PaymentAttempt{}).
					Where("status = ?", types.AttemptStatusPending).
					Count(&pending).Error; err == nil {
					m.pendingAttempts.Set(float64(pending))
				}
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
