package lease

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sourove-a/splaro/internal/config"
)

// Only the holder whose token matches may release or extend a lease
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a locker shared by every instance pointing at the same server.
// Leases expire after the TTL unless the holder is alive to refresh them.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(cfg config.LeaseConfig, logger *slog.Logger) *Redis {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
		prefix: cfg.Redis.KeyPrefix,
		ttl:    ttl,
		logger: logger.With("component", "lease"),
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	key = r.prefix + key
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}

	l := &redisLease{
		r:     r,
		key:   key,
		token: token,
		stop:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.keepAlive()

	return l, nil
}

type redisLease struct {
	r     *Redis
	key   string
	token string

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// keepAlive extends the lease every ttl/3 until released
func (l *redisLease) keepAlive() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.r.ttl/3)
			n, err := refreshScript.Run(ctx, l.r.client, []string{l.key}, l.token, l.r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.r.logger.Warn("failed to refresh lease", "key", l.key, "error", err)
				continue
			}
			if n == 0 {
				l.r.logger.Error("lease lost", "key", l.key)
				return
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		err = releaseScript.Run(ctx, l.r.client, []string{l.key}, l.token).Err()
	})
	return err
}
