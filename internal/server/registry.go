package server

import (
	"log"
	"slices"
	"sync"

	"github.com/npezzotti/go-messenger/internal/stats"
)

// Registry maps each online user to the single connection that currently
// represents them. A later Join for the same user replaces the earlier
// connection, which stays open but is no longer addressable.
type Registry struct {
	log     *log.Logger
	stats   stats.StatsProvider
	clients map[int]*Client
	lock    sync.RWMutex
}

func NewRegistry(logger *log.Logger, su stats.StatsProvider) *Registry {
	return &Registry{
		log:     logger,
		stats:   su,
		clients: make(map[int]*Client),
	}
}

// Join registers c for its user and returns the online user ids, sorted.
// Other connections are told the user came online only if it was offline.
func (r *Registry) Join(c *Client) []int {
	r.lock.Lock()
	defer r.lock.Unlock()

	userId := c.user.Id
	prev, wasOnline := r.clients[userId]
	r.clients[userId] = c

	switch {
	case !wasOnline:
		r.stats.Incr("NumOnlineUsers")
		r.broadcastLocked(UserOnline(userId), userId)
		r.log.Printf("user %d online", userId)
	case prev != c:
		r.log.Printf("connection %s superseded by %s for user %d", prev.id, c.id, userId)
	}

	return r.snapshotLocked()
}

// Leave removes c if it is still the registered connection for its user
// and reports whether it did. Stale connections are ignored.
func (r *Registry) Leave(c *Client) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	userId := c.user.Id
	cur, ok := r.clients[userId]
	if !ok || cur != c {
		return false
	}

	delete(r.clients, userId)
	r.stats.Decr("NumOnlineUsers")
	r.broadcastLocked(UserOffline(userId), userId)
	r.log.Printf("user %d offline", userId)

	return true
}

func (r *Registry) IsOnline(userId int) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	_, ok := r.clients[userId]
	return ok
}

// Lookup returns the connection registered for userId, or nil.
func (r *Registry) Lookup(userId int) *Client {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.clients[userId]
}

func (r *Registry) Snapshot() []int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []int {
	ids := make([]int, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// broadcastLocked queues msg to every registered connection except the one
// for skipUserId. Queueing never blocks, so it is safe under the lock.
func (r *Registry) broadcastLocked(msg *ServerMessage, skipUserId int) {
	for id, c := range r.clients {
		if id == skipUserId {
			continue
		}
		c.queueMessage(msg)
	}
}
