// Package lease provides the per-campaign mutual exclusion used to keep at
// most one non-test job running for a campaign.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourove-a/splaro/internal/config"
)

// ErrHeld is returned when another holder owns the lease
var ErrHeld = errors.New("lease is held")

// Lease is an acquired lock; Release is safe to call more than once
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases by key
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// New creates the locker selected by cfg.Driver
func New(ctx context.Context, cfg config.LeaseConfig, logger *slog.Logger) (Locker, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(), nil
	case "redis":
		r := NewRedis(cfg, logger)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown lease driver: %s", cfg.Driver)
	}
}

// Local is an in-process locker, sufficient when a single instance runs
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.held[key] = struct{}{}
	return &localLease{locker: l, key: key}, nil
}

// Held reports whether key is currently leased
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

type localLease struct {
	locker *Local
	key    string
	once   sync.Once
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		delete(l.locker.held, l.key)
		l.locker.mu.Unlock()
	})
	return nil
}
