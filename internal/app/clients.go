package app

import (
	"fmt"

	"github.com/yungbote/lessonpay-backend/internal/platform/gateway"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/platform/midtrans"
	"github.com/yungbote/lessonpay-backend/internal/platform/momo"
	"github.com/yungbote/lessonpay-backend/internal/platform/redislock"
)

type Clients struct {
	Locker      redislock.Locker
	Gateways    []gateway.Adapter
	closeLocker func() error
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	locker, closeLocker, err := redislock.New(log, cfg.Redis)
	if err != nil {
		return Clients{}, fmt.Errorf("init record locker: %w", err)
	}

	gateways, err := wireGateways(log, cfg)
	if err != nil {
		_ = closeLocker()
		return Clients{}, err
	}
	return Clients{
		Locker:      locker,
		Gateways:    gateways,
		closeLocker: closeLocker,
	}, nil
}

// wireGateways returns the configured adapters with cfg.Payment.Provider
// first so it becomes the default for new intents.
func wireGateways(log *logger.Logger, cfg Config) ([]gateway.Adapter, error) {
	var out []gateway.Adapter
	if cfg.momoConfigured() {
		c, err := momo.New(log, cfg.Momo)
		if err != nil {
			return nil, fmt.Errorf("init momo client: %w", err)
		}
		out = append(out, c)
	}
	if cfg.midtransConfigured() {
		c, err := midtrans.New(log, cfg.Midtrans)
		if err != nil {
			return nil, fmt.Errorf("init midtrans client: %w", err)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		log.Warn("No payment gateway configured; paid lessons cannot be purchased")
		return nil, nil
	}

	if cfg.Payment.Provider != "" {
		idx := -1
		for i, a := range out {
			if a.Provider() == cfg.Payment.Provider {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("PAYMENT_PROVIDER %q is not configured", cfg.Payment.Provider)
		}
		out[0], out[idx] = out[idx], out[0]
	}
	return out, nil
}

func (c Clients) Close() error {
	if c.closeLocker == nil {
		return nil
	}
	return c.closeLocker()
}
