package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/manager"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/server/grpc"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/server/http"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

// Server defines the common interface for all sub-servers (grpc, http).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
	grpc    *grpc.Server
}

// NewManager creates the HTTP control API and, if enabled, the gRPC health server.
func NewManager(cfg *Config, mgr *manager.Manager, operational core.OperationalState) *Manager {
	m := &Manager{}

	m.servers = append(m.servers, http.NewServer(cfg.HttpOptions, mgr, operational))

	if cfg.GrpcOptions != nil && cfg.GrpcOptions.Enabled {
		m.grpc = grpc.NewServer(cfg.GrpcOptions, operational)
		m.servers = append(m.servers, m.grpc)
	}

	return m
}

// Add registers an additional server.
func (m *Manager) Add(s Server) {
	m.servers = append(m.servers, s)
}

// SetServing forwards the operational state to the gRPC health service.
func (m *Manager) SetServing(serving bool) {
	if m.grpc != nil {
		m.grpc.SetServing(serving)
	}
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
