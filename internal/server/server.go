package server

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cardvault/apiserver/config"
	"github.com/cardvault/apiserver/internal/cache"
	"github.com/cardvault/apiserver/internal/db"
	"github.com/cardvault/apiserver/internal/handlers"
	"github.com/cardvault/apiserver/internal/mq"
	"github.com/cardvault/apiserver/internal/services"
	"github.com/cardvault/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server wraps the HTTP server, router and shared clients.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     io.Closer
	cache      io.Closer
	log        *logrus.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := logrus.New()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	secret, err := decodeJWTSecret(cfg.JWT.Secret)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	profileRepo := store.NewProfileRepository(dbConn)
	roleRepo := store.NewRoleRepository(dbConn)
	cardRepo := store.NewCardRepository(dbConn)
	transactionRepo := store.NewTransactionRepository(dbConn)

	srv := &Server{db: dbConn, log: log}

	var publisher services.EventPublisher
	switch strings.ToLower(cfg.MQBackend) {
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		broker := mq.New(client)
		publisher = broker
		srv.broker = broker
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		broker := mq.New(client)
		publisher = broker
		srv.broker = broker
	case "", "disabled":
		log.Info("event publishing disabled")
	default:
		_ = dbConn.Close()
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQBackend)
	}

	var historyCache services.HistoryCache
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewHistoryCache(cfg.Redis, log)
		if err := redisCache.Ping(ctx); err != nil {
			_ = srv.Shutdown()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		historyCache = redisCache
		srv.cache = redisCache
	}

	authService := services.NewAuthService(profileRepo, roleRepo, log)
	cardService := services.NewCardService(cardRepo, profileRepo, log)
	transferService := services.NewTransferService(cardRepo, transactionRepo, publisher, historyCache, log)
	profileService := services.NewProfileService(profileRepo, roleRepo, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(handlers.Authenticate(secret))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authService, secret)
		})
		r.Route("/card", func(r chi.Router) {
			handlers.CardRouter(r, cardService)
		})
		r.Route("/admin/card", func(r chi.Router) {
			handlers.AdminCardRouter(r, cardService)
		})
		r.Route("/transaction", func(r chi.Router) {
			handlers.TransactionRouter(r, transferService)
		})
		r.Route("/profile", func(r chi.Router) {
			handlers.ProfileRouter(r, profileService)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	srv.router = router
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// decodeJWTSecret decodes the configured base64 signing secret.
func decodeJWTSecret(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	secret, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode JWT_SECRET: %w", err)
	}
	return secret, nil
}
