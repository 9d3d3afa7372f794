package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/audit"
	"github.com/nerrad567/gray-logic-panel/internal/backend"
	"github.com/nerrad567/gray-logic-panel/internal/device"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-panel/internal/livesync"
	"github.com/nerrad567/gray-logic-panel/internal/location"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SyncEngine is the part of the live sync engine the API reads from.
type SyncEngine interface {
	Snapshot() *device.Snapshot
	Status() livesync.Status
	RequestRefresh()
	Subscribe() (<-chan livesync.Update, func())
}

// Backend is the set of remote calls the API forwards.
type Backend interface {
	Login(ctx context.Context, creds backend.Credentials) (string, error)
	Logout(ctx context.Context) error
	Signup(ctx context.Context, req backend.SignupRequest) error
	RequestPasswordReset(ctx context.Context, email string) error

	RenameDevice(ctx context.Context, deviceID, name string) error
	AssignDeviceArea(ctx context.Context, deviceID, areaID string) error
	RemoveDeviceFromArea(ctx context.Context, deviceID string) error
	SendCommand(ctx context.Context, deviceID string, target float64) error
	History(ctx context.Context, deviceID string, q backend.HistoryQuery) ([]backend.Reading, error)

	RenameHub(ctx context.Context, hubID, name string) error
	CreateArea(ctx context.Context, hubID, name string) (location.Area, error)
	RenameArea(ctx context.Context, areaID, name string) error
	DeleteArea(ctx context.Context, areaID string) error
	ClaimHub(ctx context.Context, req backend.ClaimHubRequest) error
	ClaimCamera(ctx context.Context, req backend.ClaimCameraRequest) error
}

// Session is the credential holder. *session.Guard satisfies it.
type Session interface {
	IsAuthenticated() bool
	ExpiresAt() (time.Time, bool)
	SetToken(ctx context.Context, token string) error
	ClearSession()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Engine    SyncEngine
	Backend   Backend
	Session   Session
	Directory *location.Directory
	Version   string

	// Optional.
	DB         *sql.DB
	Audit      audit.Repository
	Components []Component
}

// Server is the local HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	engine     SyncEngine
	selectors  *livesync.Selectors
	backend    Backend
	session    Session
	directory  *location.Directory
	db         *sql.DB
	audit      audit.Repository
	components []Component
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, engine, backend, session, directory)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("sync engine is required")
	case deps.Backend == nil:
		return nil, fmt.Errorf("backend client is required")
	case deps.Session == nil:
		return nil, fmt.Errorf("session guard is required")
	case deps.Directory == nil:
		return nil, fmt.Errorf("location directory is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		engine:     deps.Engine,
		selectors:  livesync.NewSelectors(deps.Engine),
		backend:    deps.Backend,
		session:    deps.Session,
		directory:  deps.Directory,
		db:         deps.DB,
		audit:      deps.Audit,
		components: deps.Components,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        NewHub(deps.WS, deps.Logger),
	}
	s.hub.current = s.currentPayload
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, begins relaying engine updates to it, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub and relay goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.relayUpdates(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
