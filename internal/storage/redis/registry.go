package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/storage"
)

// confirmScript drops the expiry of a reservation if the caller still owns it
var confirmScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("PERSIST", KEYS[1])
	return 1
end
return 0
`)

// releaseScript deletes a reservation if the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Registry is a Redis-backed session registry. Servers sharing one Redis
// database share one name space, so a name can be active on only one of them.
type Registry struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis registry
func New(cfg Config) (*Registry, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis registry with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Registry {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Registry{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Registry) Close() error {
	return s.client.Close()
}

// Ensure Registry implements the interface
var _ storage.SessionRegistry = (*Registry)(nil)

func (s *Registry) Reserve(ctx context.Context, name string, ttl time.Duration) (string, error) {
	if ttl < 0 {
		ttl = 0
	}
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.sessionKey(name), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrNameInUse, name)
	}
	return token, nil
}

func (s *Registry) Confirm(ctx context.Context, name, token string) error {
	n, err := confirmScript.Run(ctx, s.client, []string{s.sessionKey(name)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrReservationNotFound, name)
	}
	return nil
}

func (s *Registry) Release(ctx context.Context, name, token string) error {
	n, err := releaseScript.Run(ctx, s.client, []string{s.sessionKey(name)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrReservationNotFound, name)
	}
	return nil
}

func (s *Registry) IsActive(ctx context.Context, name string) (bool, error) {
	err := s.client.Get(ctx, s.sessionKey(name)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Registry) Active(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.client.Scan(ctx, 0, s.sessionPattern(), 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, s.nameFromKey(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}
