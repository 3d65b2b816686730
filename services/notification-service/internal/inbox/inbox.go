package inbox

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Inbox remembers processed event ids so redelivered events are skipped.
type Inbox interface {
	// Record returns false when eventID was already recorded.
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	// Forget drops eventID so a later redelivery is processed again.
	Forget(ctx context.Context, eventID string) error
}

type RedisInbox struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisInbox(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisInbox {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "inbox"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisInbox{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (i *RedisInbox) key(eventID string) string { return i.prefix + ":" + eventID }

func (i *RedisInbox) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	return i.rdb.SetNX(ctx, i.key(eventID), eventType, i.ttl).Result()
}

func (i *RedisInbox) Forget(ctx context.Context, eventID string) error {
	return i.rdb.Del(ctx, i.key(eventID)).Err()
}

// pruneEvery is how many records MemoryInbox takes between sweeps of
// expired ids.
const pruneEvery = 1024

// MemoryInbox is a process-local Inbox. It forgets everything on restart and
// expires ids after ttl like RedisInbox.
type MemoryInbox struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires map[string]time.Time
	records int
}

func NewMemoryInbox(ttl time.Duration) *MemoryInbox {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &MemoryInbox{ttl: ttl, now: time.Now, expires: map[string]time.Time{}}
}

func (i *MemoryInbox) Record(_ context.Context, eventID string, eventType string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	i.records++
	if i.records%pruneEvery == 0 {
		i.prune(now)
	}
	if exp, dup := i.expires[eventID]; dup && now.Before(exp) {
		return false, nil
	}
	i.expires[eventID] = now.Add(i.ttl)
	return true, nil
}

func (i *MemoryInbox) Forget(_ context.Context, eventID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.expires, eventID)
	return nil
}

// Len reports how many ids are held, expired ones not yet pruned included.
func (i *MemoryInbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.expires)
}

func (i *MemoryInbox) prune(now time.Time) {
	for id, exp := range i.expires {
		if !now.Before(exp) {
			delete(i.expires, id)
		}
	}
}
