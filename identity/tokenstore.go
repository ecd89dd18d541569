package identity

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps the server-side token state: revoked sessions, callers whose older
// tokens are void, and one-time password reset tokens.
type TokenStore interface {
	RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error
	SessionRevoked(ctx context.Context, sessionID string) (bool, error)
	// RevokeCaller voids every token of callerID issued at or before at.
	RevokeCaller(ctx context.Context, callerID string, at time.Time, ttl time.Duration) error
	CallerRevokedAt(ctx context.Context, callerID string) (time.Time, bool, error)
	PutReset(ctx context.Context, token, userID string, ttl time.Duration) error
	// TakeReset returns the user id of a reset token and deletes it. ok is false when the
	// token is unknown or expired.
	TakeReset(ctx context.Context, token string) (userID string, ok bool, err error)
}

type memEntry struct {
	value   string
	expires time.Time
}

// MemoryTokenStore is a TokenStore for single-process deployments and tests.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryTokenStore(now func() time.Time) *MemoryTokenStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryTokenStore{entries: make(map[string]memEntry), now: now}
}

func (m *MemoryTokenStore) set(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expires: m.now().Add(ttl)}
}

func (m *MemoryTokenStore) get(key string, take bool) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false
	}
	if take {
		delete(m.entries, key)
	}
	return e.value, true
}

func (m *MemoryTokenStore) RevokeSession(_ context.Context, sessionID string, ttl time.Duration) error {
	m.set(revokedSessionKey(sessionID), "1", ttl)
	return nil
}

func (m *MemoryTokenStore) SessionRevoked(_ context.Context, sessionID string) (bool, error) {
	_, ok := m.get(revokedSessionKey(sessionID), false)
	return ok, nil
}

func (m *MemoryTokenStore) RevokeCaller(_ context.Context, callerID string, at time.Time, ttl time.Duration) error {
	m.set(revokedCallerKey(callerID), strconv.FormatInt(at.UnixMilli(), 10), ttl)
	return nil
}

func (m *MemoryTokenStore) CallerRevokedAt(_ context.Context, callerID string) (time.Time, bool, error) {
	v, ok := m.get(revokedCallerKey(callerID), false)
	if !ok {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (m *MemoryTokenStore) PutReset(_ context.Context, token, userID string, ttl time.Duration) error {
	m.set(resetKey(token), userID, ttl)
	return nil
}

func (m *MemoryTokenStore) TakeReset(_ context.Context, token string) (string, bool, error) {
	userID, ok := m.get(resetKey(token), true)
	return userID, ok, nil
}

// RedisTokenStore keeps token state in Redis so every instance sees revocations.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenStore(client *redis.Client, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = "fixmyarea"
	}
	return &RedisTokenStore{client: client, prefix: prefix}
}

func (r *RedisTokenStore) key(k string) string { return r.prefix + ":" + k }

func (r *RedisTokenStore) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(revokedSessionKey(sessionID)), 1, ttl).Err()
}

func (r *RedisTokenStore) SessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(revokedSessionKey(sessionID))).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisTokenStore) RevokeCaller(ctx context.Context, callerID string, at time.Time, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(revokedCallerKey(callerID)), at.UnixMilli(), ttl).Err()
}

func (r *RedisTokenStore) CallerRevokedAt(ctx context.Context, callerID string) (time.Time, bool, error) {
	ms, err := r.client.Get(ctx, r.key(revokedCallerKey(callerID))).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (r *RedisTokenStore) PutReset(ctx context.Context, token, userID string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(resetKey(token)), userID, ttl).Err()
}

func (r *RedisTokenStore) TakeReset(ctx context.Context, token string) (string, bool, error) {
	userID, err := r.client.GetDel(ctx, r.key(resetKey(token))).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func revokedSessionKey(sessionID string) string { return "revoked:session:" + sessionID }
func revokedCallerKey(callerID string) string   { return "revoked:caller:" + callerID }
func resetKey(token string) string              { return "reset:" + token }
