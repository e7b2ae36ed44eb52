package redisx

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Connect is New plus a ping, for mains that want to fail fast.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	r := New(addr)
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return r, nil
}

// Claim marks id as handled by service. false means someone got there first.
func Claim(ctx context.Context, rdb *redis.Client, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), 1, 0).Result()
}

// Release undoes a Claim so the id can be retried.
func Release(ctx context.Context, rdb *redis.Client, service, id string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, id)).Err()
}

// Deduper binds Claim and Release to one service name.
type Deduper struct {
	rdb     *redis.Client
	service string
}

func NewDeduper(rdb *redis.Client, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service}
}

func (d *Deduper) Claim(ctx context.Context, id string) (bool, error) {
	return Claim(ctx, d.rdb, d.service, id)
}

func (d *Deduper) Release(ctx context.Context, id string) error {
	return Release(ctx, d.rdb, d.service, id)
}
