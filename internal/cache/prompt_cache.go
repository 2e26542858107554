package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

var ErrPromptNotFound = errors.New("pending prompt not found")

const defaultPromptTTL = 10 * time.Minute

// PromptCache parks prepared generation requests under a random id so a
// failed generation can be retried without re-running retrieval.
type PromptCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewPromptCache(client *redisv9.Client, ttl time.Duration) *PromptCache {
	if ttl <= 0 {
		ttl = defaultPromptTTL
	}
	return &PromptCache{client: client, ttl: ttl}
}

// Put stores v as JSON and returns its retry id.
func (c *PromptCache) Put(ctx context.Context, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal pending prompt failed: %w", err)
	}
	id := uuid.NewString()
	if err := c.client.Set(ctx, c.key(id), payload, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set pending prompt failed: %w", err)
	}
	return id, nil
}

// Get decodes the prompt stored under id into v.
func (c *PromptCache) Get(ctx context.Context, id string, v any) error {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return ErrPromptNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get pending prompt failed: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal pending prompt failed: %w", err)
	}
	return nil
}

func (c *PromptCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete pending prompt failed: %w", err)
	}
	return nil
}

func (c *PromptCache) key(id string) string {
	return "hybridrag:prompt:" + id
}

// MemoryPromptCache is the in-process stand-in used when Redis is not
// configured. Entries expire lazily on access.
type MemoryPromptCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryPrompt
}

type memoryPrompt struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryPromptCache(ttl time.Duration) *MemoryPromptCache {
	if ttl <= 0 {
		ttl = defaultPromptTTL
	}
	return &MemoryPromptCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryPrompt),
	}
}

func (c *MemoryPromptCache) Put(_ context.Context, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal pending prompt failed: %w", err)
	}
	id := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[id] = memoryPrompt{payload: payload, expiresAt: now.Add(c.ttl)}
	return id, nil
}

func (c *MemoryPromptCache) Get(_ context.Context, id string, v any) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if ok && c.now().After(e.expiresAt) {
		delete(c.entries, id)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return ErrPromptNotFound
	}
	if err := json.Unmarshal(e.payload, v); err != nil {
		return fmt.Errorf("unmarshal pending prompt failed: %w", err)
	}
	return nil
}

func (c *MemoryPromptCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return nil
}
