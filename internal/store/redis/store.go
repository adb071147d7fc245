// Package redis holds the Redis-backed pieces of the chart service: a small
// key/value store guarded by a circuit breaker, and a document source that
// reads an input document from a key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("redis: key not found")

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, addr, password string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Store reads and writes string values through a circuit breaker. Writes
// rejected by an open breaker are kept (latest value per key) and flushed
// after the next successful call.
type Store struct {
	client *goredis.Client
	cb     *CircuitBreaker

	mu      sync.Mutex
	pending map[string]string

	// OnBuffer is called when a write is held back.
	OnBuffer func(key string)
	// OnFlush is called with the number of held writes delivered.
	OnFlush func(count int)
}

// NewStore wraps client. A nil breaker gets the default 5 failures / 10s.
func NewStore(client *goredis.Client, cb *CircuitBreaker) *Store {
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	return &Store{client: client, cb: cb, pending: make(map[string]string)}
}

// Breaker exposes the breaker for metrics wiring.
func (s *Store) Breaker() *CircuitBreaker { return s.cb }

// Get returns the value at key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var (
		val     string
		missing bool
	)
	err := s.cb.Execute(func() error {
		v, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			// A missing key is an answer, not an outage.
			missing = true
			return nil
		}
		val = v
		return err
	})
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	s.flushPending(ctx)
	if missing {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, nil
}

// Set stores val at key with no expiry. With the breaker open the write is
// held for later delivery and ErrCircuitOpen is returned.
func (s *Store) Set(ctx context.Context, key, val string) error {
	err := s.cb.Execute(func() error {
		return s.client.Set(ctx, key, val, 0).Err()
	})
	if errors.Is(err, ErrCircuitOpen) {
		s.hold(key, val)
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	s.flushPending(ctx)
	return nil
}

// Pending returns the number of held writes.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store) hold(key, val string) {
	s.mu.Lock()
	s.pending[key] = val
	s.mu.Unlock()
	if s.OnBuffer != nil {
		s.OnBuffer(key)
	}
	log.Printf("[redis_store] breaker open, holding write to %s", key)
}

func (s *Store) flushPending(ctx context.Context) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = make(map[string]string)
	s.mu.Unlock()

	pipe := s.client.Pipeline()
	for k, v := range batch {
		pipe.Set(ctx, k, v, 0)
	}
	err := s.cb.Execute(func() error {
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		s.mu.Lock()
		for k, v := range batch {
			if _, newer := s.pending[k]; !newer {
				s.pending[k] = v
			}
		}
		s.mu.Unlock()
		log.Printf("[redis_store] WARNING: flush of %d held writes failed: %v", len(batch), err)
		return
	}
	if s.OnFlush != nil {
		s.OnFlush(len(batch))
	}
	log.Printf("[redis_store] flushed %d held writes", len(batch))
}
