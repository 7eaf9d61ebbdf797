package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/listingd/internal/logger"
)

var (
	// ErrNotAcquired is returned when the lock stayed busy for the whole wait
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrLockLost is the cancellation cause seen by a critical section whose lease could not be renewed
	ErrLockLost = errors.New("lock lost")
)

const releaseTimeout = 5 * time.Second

// Options tunes lock acquisition
type Options struct {
	Wait       time.Duration // how long to keep retrying a busy lock
	RetryDelay time.Duration // pause between attempts
}

// Manager hands out Redis leases with background renewal
type Manager struct {
	client     *redis.Client
	logger     logger.Logger
	wait       time.Duration
	retryDelay time.Duration
	now        func() time.Time
}

// NewManager creates a lock manager
func NewManager(client *redis.Client, log logger.Logger, opts Options) *Manager {
	if opts.Wait <= 0 {
		opts.Wait = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	return &Manager{
		client:     client,
		logger:     log,
		wait:       opts.Wait,
		retryDelay: opts.RetryDelay,
		now:        time.Now,
	}
}

type lease struct {
	keys  Keys
	token string
	ttl   time.Duration
}

// WithLock runs fn while holding keys. The context given to fn is cancelled
// with cause ErrLockLost as soon as the lease cannot be renewed; writes must
// check it right before committing. The lease is released on every exit path.
func (m *Manager) WithLock(ctx context.Context, keys Keys, ttl time.Duration, fn func(ctx context.Context) error) error {
	if keys.Scope == "" {
		return errors.New("lock scope must not be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("lock ttl must be > 0, got %v", ttl)
	}

	l := &lease{keys: keys, token: uuid.NewString(), ttl: ttl}
	if err := m.acquire(ctx, l); err != nil {
		return err
	}

	lockCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.keepAlive(lockCtx, l, cancel, stop)
	}()

	defer func() {
		close(stop)
		wg.Wait()
		cancel(nil)
		m.release(ctx, l)
	}()

	return fn(lockCtx)
}

func (m *Manager) acquire(ctx context.Context, l *lease) error {
	deadline := m.now().Add(m.wait)
	for {
		ok, err := m.tryAcquire(ctx, l)
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", l.keys.Scope, err)
		}
		if ok {
			return nil
		}
		if !m.now().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrNotAcquired, l.keys.Scope)
		}

		timer := time.NewTimer(m.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) tryAcquire(ctx context.Context, l *lease) (bool, error) {
	args := []interface{}{l.token, l.ttl.Milliseconds(), m.now().UnixMilli()}

	var res int
	var err error
	if len(l.keys.Members) == 0 {
		res, err = acquireScopeScript.Run(ctx, m.client,
			[]string{l.keys.scopeKey(), l.keys.holdersKey()}, args...).Int()
	} else {
		keys := append([]string{l.keys.scopeKey(), l.keys.holdersKey()}, l.keys.memberKeys()...)
		res, err = acquireMembersScript.Run(ctx, m.client, keys, args...).Int()
	}
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (m *Manager) keepAlive(ctx context.Context, l *lease, cancel context.CancelCauseFunc, stop <-chan struct{}) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keys := append([]string{l.keys.holdersKey()}, l.keys.owned()...)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := renewScript.Run(ctx, m.client, keys,
				l.token, l.ttl.Milliseconds(), m.now().UnixMilli()).Int()
			if err == nil && res == 1 {
				continue
			}
			m.logger.Warn("lock lost, aborting critical section",
				logger.String("scope", l.keys.Scope),
				logger.Strings("members", l.keys.Members),
				logger.Error(err))
			cancel(ErrLockLost)
			return
		}
	}
}

func (m *Manager) release(ctx context.Context, l *lease) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	keys := append([]string{l.keys.holdersKey()}, l.keys.owned()...)
	if err := releaseScript.Run(releaseCtx, m.client, keys, l.token).Err(); err != nil {
		m.logger.Warn("failed to release lock",
			logger.String("scope", l.keys.Scope),
			logger.Error(err))
	}
}
