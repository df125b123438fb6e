package webhook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"call-router/pkg/utils"
)

// Deduper reports whether a carrier event id was already processed.
// Carriers redeliver webhooks; processing the same event twice would
// double-issue call actions.
type Deduper interface {
	Seen(ctx context.Context, eventID string) bool
}

const dedupTTL = 10 * time.Minute

// MemoryDeduper is the single-instance default: a TTL map of event ids.
type MemoryDeduper struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	clock func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{
		seen:  make(map[string]time.Time),
		ttl:   dedupTTL,
		clock: time.Now,
	}
}

func (d *MemoryDeduper) Seen(ctx context.Context, eventID string) bool {
	now := d.clock()

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[eventID]; ok {
		return true
	}
	d.seen[eventID] = now
	return false
}

// RedisDeduper shares the dedup window across instances. A redis failure
// fails open: redelivered work is preferable to dropped events.
type RedisDeduper struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisDeduper(rdb *redis.Client, log *slog.Logger) *RedisDeduper {
	if log == nil {
		log = slog.Default()
	}
	return &RedisDeduper{rdb: rdb, log: log}
}

func (d *RedisDeduper) Seen(ctx context.Context, eventID string) bool {
	first, err := utils.MarkOnce(ctx, d.rdb, "webhook:event:"+eventID, dedupTTL)
	if err != nil {
		d.log.Warn("webhook dedup check failed", "event_id", eventID, "err", err)
		return false
	}
	return !first
}
