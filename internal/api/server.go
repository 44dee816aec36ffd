// Package api provides the local HTTP REST API and WebSocket stream for
// Tado Direct.
//
// It exposes the cached home state, command submission, and device
// authorization to local consumers (dashboards, scripts, home-automation
// hubs). Every endpoint except health requires the configured API key.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalocar/tado-direct/internal/auth"
	"github.com/dalocar/tado-direct/internal/command"
	"github.com/dalocar/tado-direct/internal/engine"
	"github.com/dalocar/tado-direct/internal/infrastructure/config"
	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/poll"
	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/tado"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Core is the engine surface the API consumes. Satisfied by
// *engine.Engine; narrowed to an interface so handler tests can fake it.
type Core interface {
	Homes() []engine.Home
	State(homeID int64) (*state.Snapshot, error)
	Subscribe() (<-chan *state.Diff, func())
	PollStatuses() []poll.Status
	PendingCommands() int
	Authorized(ctx context.Context) bool
	DeviceAuthPending() bool
	ReauthRequired() bool
	BeginDeviceAuth(ctx context.Context) (*auth.Credentials, error)

	SetZoneSetpoint(ctx context.Context, homeID int64, zoneID int, celsius float64, termination string, durationSeconds int) (*command.Ticket, error)
	SetZoneOff(ctx context.Context, homeID int64, zoneID int, termination string, durationSeconds int) (*command.Ticket, error)
	ResumeSchedule(ctx context.Context, homeID int64, zoneID int) (*command.Ticket, error)
	SetPresence(ctx context.Context, homeID int64, presence string) (*command.Ticket, error)
	SetChildLock(ctx context.Context, homeID int64, deviceID string, enabled bool) (*command.Ticket, error)
	SetTemperatureOffset(ctx context.Context, homeID int64, deviceID string, celsius float64) (*command.Ticket, error)
	AddMeterReading(ctx context.Context, homeID int64, reading tado.MeterReading) (*command.Ticket, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Core     Core
	Version  string
}

// Server is the local HTTP API server.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	core    Core
	version string
	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc
}

// New creates an API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Core == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Security.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger.With("component", "api"),
		core:    deps.Core,
		version: deps.Version,
	}
	s.hub = NewHub(deps.WS, s.logger)
	return s, nil
}

// CommandListener returns a dispatcher listener that broadcasts command
// lifecycle events to connected WebSocket clients.
func (s *Server) CommandListener() func(command.Event) {
	return func(ev command.Event) {
		s.hub.BroadcastCommand(ev)
	}
}

// Start begins listening for HTTP connections in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

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

// HealthCheck verifies the server has been started.
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
