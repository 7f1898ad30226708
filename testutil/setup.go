package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/teamlink/server/cache"
	"github.com/kasuganosora/teamlink/server/config"
	dbsqlite "github.com/kasuganosora/teamlink/server/db/sqlite"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates a private in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := dbsqlite.Open(dsn)
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := config.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// CreateUser inserts a user with the given id (also used as display name).
func CreateUser(t *testing.T, db *gorm.DB, id string) *model.User {
	t.Helper()
	u := &model.User{ID: id, DisplayName: id}
	require.NoError(t, db.Create(u).Error, "CreateUser %s", id)
	return u
}

// Event is one call recorded by Recorder.
type Event struct {
	UserID  string
	Type    string
	Payload json.RawMessage
}

// Recorder is an in-memory event publisher for service tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, userID, event string, payload interface{}) {
	raw, _ := json.Marshal(payload)
	r.mu.Lock()
	r.events = append(r.events, Event{UserID: userID, Type: event, Payload: raw})
	r.mu.Unlock()
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// For returns the events delivered to userID, optionally filtered by type.
func (r *Recorder) For(userID string, types ...string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.UserID != userID {
			continue
		}
		if len(types) > 0 && !contains(types, e.Type) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
