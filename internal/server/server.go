package server

import (
	"context"
	"log"
	"sync"

	"github.com/npezzotti/go-messenger/internal/config"
	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/stats"
	"github.com/teris-io/shortid"
)

const (
	sendChanSize    = 256
	persistChanSize = 1024
)

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the live state of the service: the presence registry,
// the single routing loop and the ordered persistence worker.
type ChatServer struct {
	log         *log.Logger
	db          database.GoChatRepository
	stats       stats.StatsProvider
	cfg         *config.Config
	registry    *Registry
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	sendChan    chan *routeReq
	persistChan chan *persistReq
	persistDone chan struct{}
	stop        chan stopReq
	stopped     chan struct{}
	// closed once the routing loop has exited
	finished chan struct{}
	// generateId returns the public id of a routed message
	generateId func() (string, error)
}

func NewChatServer(logger *log.Logger, db database.GoChatRepository, su stats.StatsProvider, cfg *config.Config) (*ChatServer, error) {
	su.RegisterMetric("NumActiveClients")
	su.RegisterMetric("NumOnlineUsers")
	su.RegisterMetric("NumMessagesRouted")
	su.RegisterMetric("NumMessagesDelivered")
	su.RegisterMetric("NumPersistenceFailures")

	cfg = withDefaults(cfg)

	return &ChatServer{
		log:         logger,
		db:          db,
		stats:       su,
		cfg:         cfg,
		registry:    NewRegistry(logger, su),
		clients:     make(map[*Client]struct{}),
		sendChan:    make(chan *routeReq, sendChanSize),
		persistChan: make(chan *persistReq, persistChanSize),
		persistDone: make(chan struct{}),
		stop:        make(chan stopReq),
		stopped:     make(chan struct{}),
		finished:    make(chan struct{}),
		generateId:  shortid.Generate,
	}, nil
}

func withDefaults(cfg *config.Config) *config.Config {
	c := config.Config{}
	if cfg != nil {
		c = *cfg
	}

	if c.PersistTimeout <= 0 {
		c.PersistTimeout = config.DefaultPersistTimeout
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = config.DefaultHistoryLimit
	}
	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = config.DefaultRateLimitRPS
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = config.DefaultRateLimitBurst
	}

	return &c
}

// Registry exposes the presence registry for read-only queries.
func (cs *ChatServer) Registry() *Registry {
	return cs.registry
}

// Run is the routing loop. Messages are routed one at a time in arrival
// order, so the receiver sees them in the order the server accepted them.
func (cs *ChatServer) Run() {
	go cs.persistMessages()

	for {
		select {
		case req := <-cs.sendChan:
			cs.route(req)
		case req := <-cs.stop:
			cs.log.Println("stopping chat server")
			close(cs.stopped)
			cs.drain()

			close(cs.persistChan)
			<-cs.persistDone

			cs.stopClients()
			close(cs.finished)
			close(req.done)
			return
		}
	}
}

// drain routes requests that were accepted before the server stopped.
func (cs *ChatServer) drain() {
	for {
		select {
		case req := <-cs.sendChan:
			cs.route(req)
		default:
			return
		}
	}
}

// RegisterClient tracks a connection so it is closed on shutdown. The
// user does not become visible to others until the connection joins.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	cs.stats.Incr("NumActiveClients")
	cs.log.Printf("adding connection %s from %q", c.id, c.user.Username)
}

// UnregisterClient forgets c. If c was the user's registered connection
// the user goes offline and their last-seen time is recorded.
func (cs *ChatServer) UnregisterClient(c *Client) {
	cs.clientsLock.Lock()
	_, tracked := cs.clients[c]
	delete(cs.clients, c)
	cs.clientsLock.Unlock()

	if tracked {
		cs.stats.Decr("NumActiveClients")
		cs.log.Printf("removing connection %s from %q", c.id, c.user.Username)
	}

	if !cs.registry.Leave(c) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cs.cfg.PersistTimeout)
	defer cancel()
	if err := cs.db.UpdateLastSeen(ctx, c.user.Id, Now()); err != nil {
		cs.log.Printf("update last seen for user %d: %v", c.user.Id, err)
	}
}

func (cs *ChatServer) stopClients() {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.clients {
		c.stopClient()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
