package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	CyclesChannel = "flextraff:cycles"

	pingAttempts = 3
	pingTimeout  = 2 * time.Second
)

// Cache stores JSON values and relays pub/sub messages. Backed by redis when
// a URL is configured; otherwise it keeps everything in process, which is
// enough for a single replica.
type Cache struct {
	client *redis.Client
	log    zerolog.Logger

	mu    sync.Mutex
	local map[string]localEntry
	subs  map[string]map[*Subscription]struct{}
	nowFn func() time.Time
}

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// New connects to redis when url is non-empty. On connection failure the
// in-process cache is returned together with the error so callers can log
// and carry on.
func New(url string, log zerolog.Logger) (*Cache, error) {
	c := newLocal(log)
	if url == "" {
		return c, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return c, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	var lastErr error
	for i := 0; i < pingAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			c.client = client
			return c, nil
		}
		log.Warn().Err(lastErr).Int("attempt", i+1).Msg("redis ping failed")
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}
	_ = client.Close()
	return c, fmt.Errorf("redis ping failed after %d attempts: %w", pingAttempts, lastErr)
}

// NewLocal returns a cache that never talks to redis.
func NewLocal(log zerolog.Logger) *Cache {
	return newLocal(log)
}

func newLocal(log zerolog.Logger) *Cache {
	return &Cache{
		log:   log,
		local: make(map[string]localEntry),
		subs:  make(map[string]map[*Subscription]struct{}),
		nowFn: time.Now,
	}
}

func (c *Cache) Available() bool {
	return c.client != nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Get decodes the value stored under key into dest and reports whether it
// was present.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	var data []byte
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		data = val
	} else {
		c.mu.Lock()
		entry, ok := c.local[key]
		if ok && !entry.expiresAt.IsZero() && !c.nowFn().Before(entry.expiresAt) {
			delete(c.local, key)
			ok = false
		}
		c.mu.Unlock()
		if !ok {
			return false, nil
		}
		data = entry.data
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set stores value as JSON. A zero ttl keeps the value until deleted.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.client != nil {
		return c.client.Set(ctx, key, data, ttl).Err()
	}

	entry := localEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.nowFn().Add(ttl)
	}
	c.mu.Lock()
	c.local[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.client != nil {
		return c.client.Del(ctx, keys...).Err()
	}
	c.mu.Lock()
	for _, k := range keys {
		delete(c.local, k)
	}
	c.mu.Unlock()
	return nil
}

// Publish sends message as JSON to every subscriber of channel.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if c.client != nil {
		return c.client.Publish(ctx, channel, data).Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs[channel] {
		select {
		case sub.ch <- data:
		default:
			c.log.Warn().Str("channel", channel).Msg("dropping message for slow subscriber")
		}
	}
	return nil
}

// Subscription delivers raw JSON payloads until Close is called or the
// subscribing context ends.
type Subscription struct {
	ch      chan []byte
	closeFn func() error
	once    sync.Once
}

func (s *Subscription) C() <-chan []byte {
	return s.ch
}

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.closeFn()
	})
	return err
}

func (c *Cache) Subscribe(ctx context.Context, channel string) *Subscription {
	sub := &Subscription{ch: make(chan []byte, 16)}

	if c.client != nil {
		pubsub := c.client.Subscribe(ctx, channel)
		done := make(chan struct{})
		sub.closeFn = func() error {
			close(done)
			return pubsub.Close()
		}
		go func() {
			defer close(sub.ch)
			msgs := pubsub.Channel()
			for {
				select {
				case <-done:
					return
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					select {
					case sub.ch <- []byte(msg.Payload):
					case <-done:
						return
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return sub
	}

	c.mu.Lock()
	if c.subs[channel] == nil {
		c.subs[channel] = make(map[*Subscription]struct{})
	}
	c.subs[channel][sub] = struct{}{}
	c.mu.Unlock()

	done := make(chan struct{})
	sub.closeFn = func() error {
		c.mu.Lock()
		delete(c.subs[channel], sub)
		c.mu.Unlock()
		close(done)
		close(sub.ch)
		return nil
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-done:
		}
	}()
	return sub
}

func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
