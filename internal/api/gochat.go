package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/npezzotti/go-messenger/internal/config"
	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/server"
	"github.com/npezzotti/go-messenger/internal/stats"
)

type GoChatApp struct {
	log            *log.Logger
	db             database.GoChatRepository
	mux            *http.Server
	cs             *server.ChatServer
	agg            *server.Aggregator
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
	loginLimiter   *limiterPool
	sendLimiter    *limiterPool
}

func NewGoChatApp(r *mux.Router, logger *log.Logger, cs *server.ChatServer, db database.GoChatRepository, su stats.StatsProvider, cfg *config.Config) *GoChatApp {
	if logger == nil {
		logger = log.Default()
	}

	// the aggregator works without a chat server; everyone reads as offline
	var presence server.PresenceChecker
	if cs != nil && cs.Registry() != nil {
		presence = cs.Registry()
	}

	if su != nil {
		su.RegisterMetric("NumRateLimited")
	}

	s := &GoChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		agg:            server.NewAggregator(logger, db, presence, cfg.HistoryLimit),
		stats:          su,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		loginLimiter:   newLimiterPool(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst),
		sendLimiter:    newLimiterPool(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}

	r.HandleFunc("/healthz", s.healthCheck).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/register", s.rateLimit(s.loginLimiter, s.createAccount)).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.rateLimit(s.loginLimiter, s.login)).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", s.authMiddleware(s.logout)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/auth/session", s.authMiddleware(s.session)).Methods(http.MethodGet)

	r.HandleFunc("/api/users", s.authMiddleware(s.getUsers)).Methods(http.MethodGet)

	chat := r.PathPrefix("/api/chat").Subrouter()
	chat.HandleFunc("/send", s.authMiddleware(s.rateLimit(s.sendLimiter, s.sendMessage))).Methods(http.MethodPost)
	chat.HandleFunc("/history/{userId:[0-9]+}", s.authMiddleware(s.getHistory)).Methods(http.MethodGet)
	chat.HandleFunc("/conversations", s.authMiddleware(s.getConversations)).Methods(http.MethodGet)
	chat.HandleFunc("/read", s.authMiddleware(s.markRead)).Methods(http.MethodPut)
	chat.HandleFunc("/message/{messageId}", s.authMiddleware(s.deleteMessage)).Methods(http.MethodDelete)

	r.HandleFunc("/ws", s.authMiddleware(s.serveWs)).Methods(http.MethodGet)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(r)

	h = handlers.LoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *GoChatApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *GoChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
