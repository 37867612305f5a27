package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisLeasePrefix = "campaign-insights:lease:"

// RedisWriteLeaseManager coordinates the dataset write lease across
// processes sharing one Redis.
//
// Acquire uses SET NX PX. Renew and Release run token-checked Lua scripts so
// one writer cannot extend or drop another writer's lease.
type RedisWriteLeaseManager struct {
	Client redis.UniversalClient
	Prefix string
}

// NewRedisWriteLeaseManager creates a Redis-backed lease manager. An empty
// prefix selects the default namespace.
func NewRedisWriteLeaseManager(client redis.UniversalClient, prefix string) (*RedisWriteLeaseManager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	switch {
	case prefix == "":
		prefix = defaultRedisLeasePrefix
	case !strings.HasSuffix(prefix, ":"):
		prefix += ":lease:"
	}
	return &RedisWriteLeaseManager{Client: client, Prefix: prefix}, nil
}

// Acquire attempts to take the lease for key.
func (m *RedisWriteLeaseManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*WriteLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("lease key cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultWriteLeaseTTL
	}

	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := m.Client.SetNX(ctx, m.key(key), token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWriteLeaseConflict
	}

	return &WriteLease{Key: key, Token: token, ExpiresAt: now.Add(ttl)}, nil
}

// Renew extends the lease when the token still owns the key. A missing,
// expired or foreign key yields ErrWriteLeaseConflict.
func (m *RedisWriteLeaseManager) Renew(ctx context.Context, lease *WriteLease, ttl time.Duration) (*WriteLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lease == nil || strings.TrimSpace(lease.Key) == "" || strings.TrimSpace(lease.Token) == "" {
		return nil, fmt.Errorf("valid lease is required")
	}
	if ttl <= 0 {
		ttl = defaultWriteLeaseTTL
	}

	now := time.Now().UTC()
	res, err := renewLeaseScript.Run(ctx, m.Client, []string{m.key(lease.Key)}, lease.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, err
	}
	if res != 1 {
		return nil, ErrWriteLeaseConflict
	}

	return &WriteLease{Key: lease.Key, Token: lease.Token, ExpiresAt: now.Add(ttl)}, nil
}

// Release deletes the lease only if the token still owns it. It runs on a
// fresh context so a cancelled request still frees the lock.
func (m *RedisWriteLeaseManager) Release(_ context.Context, lease *WriteLease) error {
	if lease == nil || strings.TrimSpace(lease.Key) == "" || strings.TrimSpace(lease.Token) == "" {
		return nil
	}

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := releaseLeaseScript.Run(releaseCtx, m.Client, []string{m.key(lease.Key)}, lease.Token).Int()
	return err
}

func (m *RedisWriteLeaseManager) key(key string) string {
	return m.Prefix + key
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

var renewLeaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var releaseLeaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)
