package interaction

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers action keys for a bounded time.
type Deduper interface {
	// Claim records current and reports true when neither current nor previous was
	// already recorded.
	Claim(ctx context.Context, current, previous string, ttl time.Duration) (bool, error)
	// Release forgets a claimed key so the action can be tried again.
	Release(ctx context.Context, key string) error
}

// MemoryDeduper is a process-local Deduper.
type MemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	claims  int
}

// NewMemoryDeduper constructs an empty deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{entries: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, current, previous string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()

	// sweep expired keys every so often so the map stays bounded
	d.claims++
	if d.claims%256 == 0 {
		for k, exp := range d.entries {
			if !now.Before(exp) {
				delete(d.entries, k)
			}
		}
	}

	for _, key := range []string{current, previous} {
		if key == "" {
			continue
		}
		if exp, ok := d.entries[key]; ok && now.Before(exp) {
			return false, nil
		}
	}
	d.entries[current] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, key)
	return nil
}

// RedisDeduper shares claimed keys between bot processes.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

// NewRedisDeduper constructs a deduper storing keys under namespace, e.g. "ticketbot:dedup".
func NewRedisDeduper(client *redis.Client, namespace string) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: namespace}
}

// claimScript sets KEYS[1] unless it or the optional KEYS[2] already exists.
var claimScript = redis.NewScript(`
if #KEYS > 1 and redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
if redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[1]) then
	return 1
end
return 0
`)

func (d *RedisDeduper) Claim(ctx context.Context, current, previous string, ttl time.Duration) (bool, error) {
	keys := []string{d.key(current)}
	if previous != "" {
		keys = append(keys, d.key(previous))
	}
	n, err := claimScript.Run(ctx, d.client, keys, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.key(key)).Err()
}

func (d *RedisDeduper) key(k string) string {
	return d.prefix + ":" + k
}
