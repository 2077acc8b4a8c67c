// Package redis provides a swrcache.Store backed by Redis. It also
// implements swrcache.Watcher: every write publishes on a per-item pub/sub
// channel, so a snapshot written by one process is picked up by the others —
// the cross-context sync path.
package redis

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"swrcache"
)

// instanceSeq feeds per-store origin identifiers so a store ignores change
// notifications caused by its own writes.
var instanceSeq uint64

// Options holds configuration for the Redis store.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store implements swrcache.Store and swrcache.Watcher using Redis.
// The counters field tracks operation statistics for monitoring (thread-safe).
type Store struct {
	redisClient       *redis.Client
	origin            string // identifies this store's own writes on the change channel
	mu                sync.Mutex
	counters          map[string]int
	createdInternally bool
}

// Interface conformance checks.
var (
	_ swrcache.Store   = (*Store)(nil)
	_ swrcache.Watcher = (*Store)(nil)
	_ io.Closer        = (*Store)(nil)
)

// NewStore creates a new Redis store. If redisCli is not nil it is used
// directly; otherwise opts is used to create a new client, which is then
// owned (and closed) by the store.
func NewStore(redisCli *redis.Client, opts *Options) (*Store, error) {
	var rdb *redis.Client
	var createdInternally bool

	if redisCli != nil {
		rdb = redisCli
	} else {
		if opts == nil {
			opts = &Options{}
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		createdInternally = true

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	return &Store{
		redisClient:       rdb,
		origin:            fmt.Sprintf("%d-%d", os.Getpid(), atomic.AddUint64(&instanceSeq, 1)),
		counters:          make(map[string]int),
		createdInternally: createdInternally,
	}, nil
}

// incrementCounter safely increments a named operation counter.
func (s *Store) incrementCounter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
}

// Stats returns store operation statistics for monitoring.
func (s *Store) Stats() swrcache.StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		cloned[k] = v
	}
	return swrcache.StoreStats{Counters: cloned}
}

func changeChannel(name string) string {
	return "swrcache:changed:" + name
}

// GetItem retrieves a value by name. Returns swrcache.ErrNotFound on miss.
func (s *Store) GetItem(ctx context.Context, name string) (string, error) {
	s.incrementCounter("GetItem")
	val, err := s.redisClient.Get(ctx, name).Result()
	if err == redis.Nil {
		s.incrementCounter("GetItemMiss")
		return "", swrcache.ErrNotFound
	} else if err != nil {
		s.incrementCounter("GetItemError")
		return "", fmt.Errorf("redis GetItem error for '%s': %w", name, err)
	}
	s.incrementCounter("GetItemHit")
	return val, nil
}

// SetItem stores a value by name and notifies watchers in other contexts.
func (s *Store) SetItem(ctx context.Context, name string, value string) error {
	s.incrementCounter("SetItem")
	if err := s.redisClient.Set(ctx, name, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SetItem error for '%s': %w", name, err)
	}
	if err := s.redisClient.Publish(ctx, changeChannel(name), s.origin).Err(); err != nil {
		log.Printf("WARN: failed to publish change notification for '%s': %v", name, err)
	}
	return nil
}

// RemoveItem deletes a value by name and notifies watchers in other contexts.
func (s *Store) RemoveItem(ctx context.Context, name string) error {
	s.incrementCounter("RemoveItem")
	if err := s.redisClient.Del(ctx, name).Err(); err != nil {
		return fmt.Errorf("redis RemoveItem error for '%s': %w", name, err)
	}
	if err := s.redisClient.Publish(ctx, changeChannel(name), s.origin).Err(); err != nil {
		log.Printf("WARN: failed to publish change notification for '%s': %v", name, err)
	}
	return nil
}

// Watch subscribes to the item's change channel and invokes onChange for
// writes made by other store instances. Writes made through this store are
// filtered out by origin, matching the browser convention that a context
// does not observe its own storage writes.
func (s *Store) Watch(ctx context.Context, name string, onChange func()) (func(), error) {
	s.incrementCounter("Watch")
	pubsub := s.redisClient.Subscribe(ctx, changeChannel(name))
	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis Watch subscribe error for '%s': %w", name, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			if msg.Payload == s.origin {
				continue
			}
			onChange()
		}
	}()

	return func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("WARN: failed to close change subscription for '%s': %v", name, err)
		}
	}, nil
}

// Close implements io.Closer. Only closes the underlying client if it was
// created by NewStore.
func (s *Store) Close() error {
	if s.createdInternally && s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}
