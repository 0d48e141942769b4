package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/auth"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/events"
	"github.com/nerrad567/feeder-core/internal/feeding"
	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
	"github.com/nerrad567/feeder-core/internal/infrastructure/logging"
	"github.com/nerrad567/feeder-core/internal/schedule"
	"github.com/nerrad567/feeder-core/internal/schedule/push"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ticketCleanupInterval is how often expired WebSocket tickets are purged.
const ticketCleanupInterval = time.Minute

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	MQTT      config.MQTTConfig // advertised to devices at provisioning
	Logger    *logging.Logger
	Auth      *auth.Service
	Tickets   *auth.TicketStore
	Devices   *device.Directory
	Schedules schedule.Repository
	Audit     *audit.Log
	Engine    *feeding.Engine
	Sync      *push.Synchronizer
	Ingestor  *events.Ingestor
	Hub       *Hub // optional; created when nil
	Version   string
}

// Server is the HTTP API server for Feeder Core.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	mqttCfg   config.MQTTConfig
	logger    *logging.Logger
	auth      *auth.Service
	tickets   *auth.TicketStore
	devices   *device.Directory
	schedules schedule.Repository
	audit     *audit.Log
	engine    *feeding.Engine
	sync      *push.Synchronizer
	ingestor  *events.Ingestor
	hub       *Hub
	version   string
	now       func() time.Time

	server *http.Server
	cancel context.CancelFunc
}

// New creates a new API server. It is not started until Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("auth service is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device directory is required")
	case deps.Schedules == nil:
		return nil, fmt.Errorf("schedule repository is required")
	case deps.Audit == nil:
		return nil, fmt.Errorf("audit log is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("feeding engine is required")
	case deps.Sync == nil:
		return nil, fmt.Errorf("schedule synchronizer is required")
	case deps.Ingestor == nil:
		return nil, fmt.Errorf("log ingestor is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		mqttCfg:   deps.MQTT,
		logger:    deps.Logger,
		auth:      deps.Auth,
		tickets:   deps.Tickets,
		devices:   deps.Devices,
		schedules: deps.Schedules,
		audit:     deps.Audit,
		engine:    deps.Engine,
		sync:      deps.Sync,
		ingestor:  deps.Ingestor,
		hub:       deps.Hub,
		version:   deps.Version,
		now:       time.Now,
	}
	if s.tickets == nil {
		s.tickets = auth.NewTicketStore()
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub, for wiring event sinks.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.Cleanup(srvCtx, ticketCleanupInterval)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
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
