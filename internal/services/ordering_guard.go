package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"entitlement-api/pkg/logging"

	"github.com/redis/go-redis/v9"
)

// OrderingGuard decides whether a notification may be applied given the
// signedDate of the newest notification already applied to the same
// original transaction. Equal timestamps are admitted so redelivery of the
// same notification stays idempotent.
type OrderingGuard interface {
	Admit(ctx context.Context, originalTransactionID string, signedAt time.Time) (bool, error)
}

// LastWriteWins admits every notification in arrival order.
type LastWriteWins struct{}

// Admit always admits.
func (LastWriteWins) Admit(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

// MemoryOrderingGuard keeps the newest signedDate per original transaction in
// process memory. Entries idle for longer than the TTL are dropped.
type MemoryOrderingGuard struct {
	latest          map[string]guardEntry
	mutex           sync.Mutex
	cleanupInterval time.Duration
	entryTTL        time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type guardEntry struct {
	signedAt time.Time
	seenAt   time.Time
}

// NewMemoryOrderingGuard creates the guard and starts its cleanup routine.
func NewMemoryOrderingGuard(entryTTL time.Duration) *MemoryOrderingGuard {
	g := &MemoryOrderingGuard{
		latest:          make(map[string]guardEntry),
		cleanupInterval: time.Hour,
		entryTTL:        entryTTL,
		stopCleanup:     make(chan struct{}),
	}

	// 启动清理协程
	go g.startCleanupRoutine()

	return g
}

// Admit reports whether signedAt is not older than the newest admitted
// notification for originalTransactionID, and records it if so.
func (g *MemoryOrderingGuard) Admit(_ context.Context, originalTransactionID string, signedAt time.Time) (bool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if entry, ok := g.latest[originalTransactionID]; ok && signedAt.Before(entry.signedAt) {
		return false, nil
	}
	g.latest[originalTransactionID] = guardEntry{signedAt: signedAt, seenAt: time.Now()}
	return true, nil
}

// Len returns the number of tracked transactions.
func (g *MemoryOrderingGuard) Len() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.latest)
}

func (g *MemoryOrderingGuard) startCleanupRoutine() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.cleanup(time.Now())
		case <-g.stopCleanup:
			return
		}
	}
}

// cleanup 清理过期的记录
func (g *MemoryOrderingGuard) cleanup(now time.Time) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	initialCount := len(g.latest)
	for id, entry := range g.latest {
		if now.Sub(entry.seenAt) > g.entryTTL {
			delete(g.latest, id)
		}
	}

	if cleaned := initialCount - len(g.latest); cleaned > 0 {
		logging.Infof("Ordering guard cleanup: removed %d entries, remaining: %d", cleaned, len(g.latest))
	}
}

// Stop stops the cleanup routine.
func (g *MemoryOrderingGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stopCleanup) })
}

// admitScript stores ARGV[1] unless the key already holds a larger value.
var admitScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// RedisOrderingGuard keeps the newest signedDate per original transaction in
// Redis, shared by every replica.
type RedisOrderingGuard struct {
	client    redis.Scripter
	keyPrefix string
	entryTTL  time.Duration
}

// NewRedisOrderingGuard creates a guard backed by client.
func NewRedisOrderingGuard(client redis.Scripter, entryTTL time.Duration) *RedisOrderingGuard {
	return &RedisOrderingGuard{
		client:    client,
		keyPrefix: "entitlement:ordering:",
		entryTTL:  entryTTL,
	}
}

// Admit runs the compare-and-set atomically on the server.
func (g *RedisOrderingGuard) Admit(ctx context.Context, originalTransactionID string, signedAt time.Time) (bool, error) {
	key := g.keyPrefix + originalTransactionID
	admitted, err := admitScript.Run(ctx, g.client, []string{key}, signedAt.UnixMilli(), g.entryTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("ordering guard %s: %w", originalTransactionID, err)
	}
	return admitted == 1, nil
}
