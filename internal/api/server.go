package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/studysocial/studysocial-core/internal/audit"
	"github.com/studysocial/studysocial-core/internal/auth"
	"github.com/studysocial/studysocial-core/internal/infrastructure/config"
	"github.com/studysocial/studysocial-core/internal/infrastructure/database"
	"github.com/studysocial/studysocial-core/internal/infrastructure/logging"
	"github.com/studysocial/studysocial-core/internal/social"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	AuthService *auth.Service
	Users       auth.UserRepository
	Posts       social.PostRepository
	Rooms       social.RoomRepository
	Messages    social.MessageRepository
	Friends     social.FriendRepository
	AuditRepo   audit.Repository
	DB          *database.DB
	Version     string
}

// Server is the HTTP API server for the Study Social platform.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	authSvc   *auth.Service
	users     auth.UserRepository
	posts     social.PostRepository
	rooms     social.RoomRepository
	messages  social.MessageRepository
	friends   social.FriendRepository
	auditRepo audit.Repository
	db        *database.DB
	version   string
	startTime time.Time

	server    *http.Server
	hub       *Hub
	wsTickets *ticketStore
	auditCh   chan *audit.AuditLog
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.AuthService == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		authSvc:   deps.AuthService,
		users:     deps.Users,
		posts:     deps.Posts,
		rooms:     deps.Rooms,
		messages:  deps.Messages,
		friends:   deps.Friends,
		auditRepo: deps.AuditRepo,
		db:        deps.DB,
		version:   deps.Version,
		wsTickets: newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the WebSocket hub, the ticket cleanup loop,
// and the audit drain, then launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startTime = time.Now()

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	go s.cleanTicketsLoop(srvCtx)

	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
		go s.drainAuditLog(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup, audit drain)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
