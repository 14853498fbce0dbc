package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Redis backs the cart with a shared Redis instance so that several
// storefront processes see the same cart.
type Redis struct {
	client *redis.Client
	log    logrus.FieldLogger
}

// NewRedis accepts either a plain "hostname:port" address or a redis:// URL.
func NewRedis(addr string, log logrus.FieldLogger) *Redis {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{
			Addr:         addr,
			MinIdleConns: 1,
			MaxRetries:   30,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	return &Redis{
		client: redis.NewClient(opts),
		log:    log,
	}
}

// Initialize verifies connectivity, retrying with exponential backoff. Redis
// may come up after the storefront does.
func (r *Redis) Initialize(ctx context.Context) error {
	for i := 0; i < 30; i++ {
		if r.Ping(ctx) {
			r.log.Infof("redis store: connected on attempt %d", i+1)
			return nil
		}

		backoff := time.Duration(1000*(1<<uint(i))) * time.Millisecond
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		r.log.Infof("redis store: ping failed, waiting %v before next attempt", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed to connect to Redis after 30 attempts")
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// Watch signals whenever the key changes in Redis, including writes by other
// storefront processes. Requires keyspace notifications ("K$" or broader) on
// the server; without them the channel simply stays quiet.
func (r *Redis) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	sub := r.client.PSubscribe(ctx, "__keyspace@*__:"+key)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}

func (r *Redis) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.client.Ping(pingCtx).Result(); err != nil {
		r.log.Warnf("redis store: ping failed: %v", err)
		return false
	}
	return true
}
