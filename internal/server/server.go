package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phishrange/apiserver/config"
	"github.com/phishrange/apiserver/internal/db"
	"github.com/phishrange/apiserver/internal/handlers"
	"github.com/phishrange/apiserver/internal/mail"
	"github.com/phishrange/apiserver/internal/mq"
	"github.com/phishrange/apiserver/internal/services"
	"github.com/phishrange/apiserver/internal/storage"
	"github.com/phishrange/apiserver/internal/store"
)

// Server wraps the HTTP server and its long-lived dependencies.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      mq.Backend
}

// New constructs a Server: database, mail queue, optional asset store,
// repositories, services, and routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := slog.Default()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueueBackend(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	assets, err := NewAssetStore(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		_ = queue.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	challengeRepo := store.NewChallengeRepository(dbConn)

	dispatcher := mail.NewQueueDispatcher(queue, cfg.Mail.Queue)

	userService := services.NewUserService(userRepo)
	dispatchService := services.NewDispatchService(userService, userRepo, challengeRepo, dispatcher, assets, log)
	flagService := services.NewFlagService(userService, userRepo, challengeRepo)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Group(func(r chi.Router) {
		handlers.ParticipantRouter(r, userService, dispatchService, flagService)
	})
	if cfg.Admin.PasswordHash != "" {
		jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if jwtSecret == "" {
			_ = dbConn.Close()
			_ = queue.Close()
			return nil, errors.New("JWT_SECRET is required when the admin surface is enabled")
		}
		router.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, challengeRepo, assets, cfg.Admin.PasswordHash, jwtSecret)
		})
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
	}, nil
}

// NewQueueBackend selects the mail queue backend from config.
func NewQueueBackend(ctx context.Context, cfg config.Config) (mq.Backend, error) {
	switch cfg.Mail.Backend {
	case "rabbitmq":
		return mq.NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return mq.NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mail queue backend %q", cfg.Mail.Backend)
	}
}

// NewAssetStore selects the challenge asset store from config. Returns nil
// when no backend is configured; inline template bodies still work.
func NewAssetStore(ctx context.Context, cfg config.Config) (*storage.AssetStore, error) {
	switch cfg.Assets.Backend {
	case "":
		return nil, nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewAssetStore(client), nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewAssetStore(client), nil
	default:
		return nil, fmt.Errorf("unknown asset storage backend %q", cfg.Assets.Backend)
	}
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
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	return s.httpServer.Close()
}
