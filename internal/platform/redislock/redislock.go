// Package redislock serializes work on a single record across goroutines and,
// when Redis is configured, across processes.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/lessonpay-backend/internal/platform/envutil"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

// ErrLockBusy is returned when the wait budget ran out before the lock freed.
var ErrLockBusy = errors.New("record lock busy")

type Locker interface {
	// Lock blocks until key is held or ctx/wait budget expires. The returned
	// func releases the lock and is safe to call once.
	Lock(ctx context.Context, key string) (func(), error)
}

type Config struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
	WaitLimit time.Duration `yaml:"wait_limit"`
}

// ConfigFromEnv overlays REDIS_* and RECORD_LOCK_* variables on base.
func ConfigFromEnv(base Config) Config {
	if base.Prefix == "" {
		base.Prefix = "lessonpay:lock:"
	}
	return Config{
		Addr:      envutil.String("REDIS_ADDR", base.Addr),
		Password:  envutil.String("REDIS_PASSWORD", base.Password),
		DB:        envutil.Int("REDIS_DB", base.DB),
		Prefix:    envutil.String("RECORD_LOCK_PREFIX", base.Prefix),
		TTL:       envutil.Duration("RECORD_LOCK_TTL", base.TTL),
		WaitLimit: envutil.Duration("RECORD_LOCK_WAIT", base.WaitLimit),
	}
}

// New returns a Redis-backed locker when cfg.Addr is set and reachable,
// otherwise an in-process keyed mutex.
func New(log *logger.Logger, cfg Config) (Locker, func() error, error) {
	if log == nil {
		return nil, nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		log.Info("Record locker running in-process (REDIS_ADDR unset)")
		return NewLocal(), func() error { return nil }, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(log, rdb, cfg), rdb.Close, nil
}

// releaseScript deletes the key only if we still own it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	log       *logger.Logger
	rdb       goredis.Cmdable
	prefix    string
	ttl       time.Duration
	waitLimit time.Duration
}

func NewRedis(log *logger.Logger, rdb goredis.Cmdable, cfg Config) Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.WaitLimit <= 0 {
		cfg.WaitLimit = 5 * time.Second
	}
	return &redisLocker{
		log:       log.With("component", "RedisRecordLocker"),
		rdb:       rdb,
		prefix:    cfg.Prefix,
		ttl:       cfg.TTL,
		waitLimit: cfg.WaitLimit,
	}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	full := l.prefix + key
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(l.waitLimit)
	backoff := 10 * time.Millisecond
	for {
		ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil {
						l.log.Warn("Record lock release failed", "key", full, "error", err)
					}
				})
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

func randomToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

type localLocker struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

func NewLocal() Locker {
	return &localLocker{keys: map[string]*localEntry{}}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e := l.keys[key]
	if e == nil {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *localLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
	l.mu.Unlock()
}
