package presence

import (
	"context"
	"time"

	"github.com/kasuganosora/teamlink/server/cache"
	"go.uber.org/zap"
)

const (
	userKeyPrefix = "presence:user:"
	connKeyPrefix = "presence:conn:"
	opTimeout     = 2 * time.Second
)

// CacheRegistry keeps presence in a shared cache so every instance sees
// every connection. Each connection has its own owner key; it and the
// user's set live for ttl after the last Register or Refresh, which bounds
// what a crashed instance leaves behind. Transports call Refresh on every
// heartbeat, so ttl must be well above the heartbeat interval.
type CacheRegistry struct {
	c      cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCacheRegistry(c cache.Cache, ttl time.Duration, logger *zap.Logger) *CacheRegistry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CacheRegistry{c: c, ttl: ttl, logger: logger}
}

func userKey(userID string) string { return userKeyPrefix + userID }
func connKey(connID string) string { return connKeyPrefix + connID }

func (r *CacheRegistry) Register(userID, connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	prev, err := r.c.Get(ctx, connKey(connID))
	switch {
	case err == nil && prev != userID:
		if err := r.c.SRem(ctx, userKey(prev), connID); err != nil {
			r.logger.Warn("presence: move connection", zap.String("conn_id", connID), zap.Error(err))
		}
	case err != nil && !cache.IsNotFound(err):
		r.logger.Warn("presence: lookup owner", zap.String("conn_id", connID), zap.Error(err))
	}
	if err := r.put(ctx, userID, connID); err != nil {
		r.logger.Error("presence: register", zap.String("user_id", userID), zap.Error(err))
	}
}

// Refresh extends the lifetime of a live connection. It re-creates the
// entries if they already expired.
func (r *CacheRegistry) Refresh(userID, connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := r.put(ctx, userID, connID); err != nil {
		r.logger.Warn("presence: refresh", zap.String("conn_id", connID), zap.Error(err))
	}
}

func (r *CacheRegistry) put(ctx context.Context, userID, connID string) error {
	if err := r.c.Set(ctx, connKey(connID), userID, r.ttl); err != nil {
		return err
	}
	if err := r.c.SAdd(ctx, userKey(userID), connID); err != nil {
		return err
	}
	return r.c.Expire(ctx, userKey(userID), r.ttl)
}

func (r *CacheRegistry) Unregister(connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	userID, err := r.c.Get(ctx, connKey(connID))
	if err != nil {
		if !cache.IsNotFound(err) {
			r.logger.Warn("presence: unregister", zap.String("conn_id", connID), zap.Error(err))
		}
		return
	}
	if err := r.c.SRem(ctx, userKey(userID), connID); err != nil {
		r.logger.Warn("presence: unregister", zap.String("conn_id", connID), zap.Error(err))
	}
	if err := r.c.Del(ctx, connKey(connID)); err != nil {
		r.logger.Warn("presence: unregister", zap.String("conn_id", connID), zap.Error(err))
	}
}

// ConnectionsFor returns nil when the cache is unreachable; callers treat
// that as offline. Members whose owner key has expired are dropped from the
// user's set.
func (r *CacheRegistry) ConnectionsFor(userID string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ids, err := r.c.SMembers(ctx, userKey(userID))
	if err != nil {
		r.logger.Warn("presence: connections", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	live := ids[:0]
	var stale []string
	for _, id := range ids {
		owner, err := r.c.Get(ctx, connKey(id))
		switch {
		case err == nil && owner == userID:
			live = append(live, id)
		case err == nil || cache.IsNotFound(err):
			stale = append(stale, id)
		default:
			// Keep the member when the owner cannot be read.
			live = append(live, id)
		}
	}
	if len(stale) > 0 {
		if err := r.c.SRem(ctx, userKey(userID), stale...); err != nil {
			r.logger.Warn("presence: prune", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return live
}
