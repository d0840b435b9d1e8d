// Package redislock implements distributed per-vendor leases on Redis.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/vendorflow/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	renewScript = `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('PEXPIRE', KEYS[1], ARGV[2])
		else
			return 0
		end`

	releaseScript = `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		else
			return 0
		end`
)

// LeaseKey is the Redis key holding a vendor's lease.
func LeaseKey(vendorID string) string {
	return "vendorflow:lease:" + vendorID
}

// Client is the subset of go-redis commands used by Locker.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Locker implements task.VendorLocker with SET NX PX leases whose owner is
// checked in Lua on renew and release.
type Locker struct {
	rdb Client
}

var _ task.VendorLocker = (*Locker)(nil)

// Connect parses a redis:// URL and verifies the server answers PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewLocker creates a Locker over rdb.
func NewLocker(rdb Client) *Locker {
	return &Locker{rdb: rdb}
}

// TryLock implements task.VendorLocker. An owner that already holds the
// lease has it extended.
func (l *Locker) TryLock(ctx context.Context, vendorID, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, LeaseKey(vendorID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set lease for vendor %s: %w", vendorID, err)
	}
	if ok {
		return true, nil
	}
	return l.renew(ctx, vendorID, owner, ttl)
}

func (l *Locker) renew(ctx context.Context, vendorID, owner string, ttl time.Duration) (bool, error) {
	cmd := l.rdb.Eval(ctx, renewScript, []string{LeaseKey(vendorID)}, owner, ttl.Milliseconds())
	if err := cmd.Err(); err != nil {
		return false, fmt.Errorf("renew lease for vendor %s: %w", vendorID, err)
	}
	n, _ := cmd.Int()
	return n == 1, nil
}

// Unlock implements task.VendorLocker.
func (l *Locker) Unlock(ctx context.Context, vendorID, owner string) error {
	cmd := l.rdb.Eval(ctx, releaseScript, []string{LeaseKey(vendorID)}, owner)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("release lease for vendor %s: %w", vendorID, err)
	}
	return nil
}
