// Package presence tracks which connection ids belong to which user.
package presence

import (
	"sync"

	"go.uber.org/zap"
)

// Registry maps users to their live connection ids. A connection id belongs
// to at most one user. Implementations are safe for concurrent use.
type Registry interface {
	// Register adds connID to userID's set. Registering the same pair again is
	// a no-op; registering a connID owned by another user moves it.
	Register(userID, connID string)
	// Unregister removes connID from whichever user owns it.
	Unregister(connID string)
	// ConnectionsFor returns a snapshot of the user's connection ids.
	ConnectionsFor(userID string) []string
	// Refresh marks a registered connection as still alive. Registries
	// without expiry ignore it.
	Refresh(userID, connID string)
}

// MemoryRegistry is a single-instance Registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{} // userID → connIDs
	owner  map[string]string              // connID → userID
	logger *zap.Logger
}

func NewMemoryRegistry(logger *zap.Logger) *MemoryRegistry {
	return &MemoryRegistry{
		byUser: make(map[string]map[string]struct{}),
		owner:  make(map[string]string),
		logger: logger,
	}
}

func (r *MemoryRegistry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[connID]; ok {
		if prev == userID {
			return
		}
		r.removeLocked(prev, connID)
		r.logger.Warn("connection moved to another user",
			zap.String("conn_id", connID),
			zap.String("from_user", prev),
			zap.String("to_user", userID))
	}
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[connID] = struct{}{}
	r.owner[connID] = userID
}

func (r *MemoryRegistry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID, ok := r.owner[connID]; ok {
		r.removeLocked(userID, connID)
	}
}

func (r *MemoryRegistry) removeLocked(userID, connID string) {
	delete(r.owner, connID)
	if set, ok := r.byUser[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

func (r *MemoryRegistry) Refresh(string, string) {}

func (r *MemoryRegistry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// OnlineUsers returns the number of users with at least one connection.
func (r *MemoryRegistry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
