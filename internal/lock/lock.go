// Package lock implements the per-(user,campaign) distributed lock the draw
// pipeline uses to serialize concurrent draws for the same subject, per
// spec §5's lock discipline: acquire before the transaction, heartbeat while
// held, release on every exit path including panics.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/r3e-network/lottery-core/internal/errors"
)

// unlockScript compares the stored owner token before deleting the key, so a
// lock never releases a different holder's lease (e.g. after our own TTL
// expired and someone else acquired it).
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// renewScript extends the TTL only while we still hold the lease.
const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Service acquires and releases per-key leases backed by Redis SET NX PX.
type Service struct {
	client *redis.Client
}

// New wraps an existing Redis client for locking use.
func New(client *redis.Client) *Service {
	return &Service{client: client}
}

// Lease represents a held lock. The caller must call Release exactly once,
// typically via defer immediately after a successful Acquire.
type Lease struct {
	service *Service
	key     string
	owner   string
	ttl     time.Duration
	cancel  context.CancelFunc
	done    chan struct{}
}

func lockKey(userID, campaignID string) string {
	return fmt.Sprintf("lock:draw:%s:%s", userID, campaignID)
}

// Acquire blocks (polling) until the lock is obtained or timeout elapses,
// then starts a background heartbeat that renews the lease at ttl/3
// intervals until Release is called.
func (s *Service) Acquire(ctx context.Context, userID, campaignID string, ttl, acquireTimeout time.Duration) (*Lease, error) {
	key := lockKey(userID, campaignID)
	owner := uuid.New().String()

	deadline := time.Now().Add(acquireTimeout)
	const pollInterval = 25 * time.Millisecond

	for {
		ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
		if err != nil {
			return nil, errors.TransientStoreError("redis.setnx.lock", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.LockTimeout(key)
		}
		select {
		case <-ctx.Done():
			return nil, errors.LockTimeout(key)
		case <-time.After(pollInterval):
		}
	}

	heartbeatCtx, cancel := context.WithCancel(context.Background())
	lease := &Lease{
		service: s,
		key:     key,
		owner:   owner,
		ttl:     ttl,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go lease.heartbeat(heartbeatCtx)
	return lease, nil
}

func (l *Lease) heartbeat(ctx context.Context) {
	defer close(l.done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(context.Background(), l.ttl)
			l.service.client.Eval(renewCtx, renewScript, []string{l.key}, l.owner, l.ttl.Milliseconds())
			cancel()
		}
	}
}

// Release stops the heartbeat and deletes the lock if we still own it. Safe
// to call even if the lease expired underneath us.
func (l *Lease) Release(ctx context.Context) error {
	l.cancel()
	<-l.done

	res, err := l.service.client.Eval(ctx, unlockScript, []string{l.key}, l.owner).Result()
	if err != nil {
		return errors.TransientStoreError("redis.eval.unlock", err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		// Lease already expired and possibly reacquired by someone else;
		// not an error, just means our TTL budget ran out before release.
		return nil
	}
	return nil
}
