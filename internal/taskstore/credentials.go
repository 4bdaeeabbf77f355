package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// Credentials hands a user's mail token from the API to the worker that runs
// their scan. Tokens are single-use.
type Credentials interface {
	PutToken(ctx context.Context, scanID int64, tok *oauth2.Token, ttl time.Duration) error

	// TakeToken returns and deletes the token for scanID.
	TakeToken(ctx context.Context, scanID int64) (*oauth2.Token, error)
}

type RedisCredentials struct {
	rdb *redis.Client
}

func NewRedisCredentials(rdb *redis.Client) *RedisCredentials {
	return &RedisCredentials{rdb: rdb}
}

func credentialKey(scanID int64) string {
	return fmt.Sprintf("tripscan:scan:%d:credential", scanID)
}

func (c *RedisCredentials) PutToken(ctx context.Context, scanID int64, tok *oauth2.Token, ttl time.Duration) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := c.rdb.Set(ctx, credentialKey(scanID), data, ttl).Err(); err != nil {
		return fmt.Errorf("store credential for scan %d: %w", scanID, err)
	}
	return nil
}

func (c *RedisCredentials) TakeToken(ctx context.Context, scanID int64) (*oauth2.Token, error) {
	raw, err := c.rdb.GetDel(ctx, credentialKey(scanID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("credential for scan %d: %w", scanID, ErrNotFound)
		}
		return nil, fmt.Errorf("credential for scan %d: %w", scanID, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode credential for scan %d: %w", scanID, err)
	}
	return &tok, nil
}

type memoryCredential struct {
	tok       *oauth2.Token
	expiresAt time.Time
}

type MemoryCredentials struct {
	mu     sync.Mutex
	tokens map[int64]memoryCredential
	now    func() time.Time
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{tokens: make(map[int64]memoryCredential), now: time.Now}
}

func (c *MemoryCredentials) PutToken(_ context.Context, scanID int64, tok *oauth2.Token, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[scanID] = memoryCredential{tok: tok, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCredentials) TakeToken(_ context.Context, scanID int64) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, ok := c.tokens[scanID]
	delete(c.tokens, scanID)
	if !ok || c.now().After(cred.expiresAt) {
		return nil, fmt.Errorf("credential for scan %d: %w", scanID, ErrNotFound)
	}
	return cred.tok, nil
}
