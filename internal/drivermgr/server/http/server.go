package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/manager"
	"github.com/autopeer-io/drivermgr/internal/pkg/metrics"
	"github.com/autopeer-io/drivermgr/pkg/log"
	"github.com/autopeer-io/drivermgr/pkg/options"
)

// Server is the REST control API of the attachment manager, plus health and metrics.
type Server struct {
	server  *http.Server
	options *options.HttpOptions
	router  *mux.Router
}

func NewServer(opts *options.HttpOptions, mgr *manager.Manager, operational core.OperationalState) *Server {
	h := &handler{mgr: mgr, operational: operational}

	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/factories", h.listFactories).Methods(http.MethodGet)
	api.HandleFunc("/positions", h.listPositions).Methods(http.MethodGet)
	api.HandleFunc("/counts", h.counts).Methods(http.MethodGet)

	api.HandleFunc("/vehicles", h.listVehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/enable", h.batch(true)).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/disable", h.batch(false)).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{name}", h.getVehicle).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{name}/factories", h.vehicleFactories).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{name}/driver", h.attach).Methods(http.MethodPut)
	api.HandleFunc("/vehicles/{name}/driver", h.detach).Methods(http.MethodDelete)
	api.HandleFunc("/vehicles/{name}/enable", h.setEnabled(true)).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{name}/disable", h.setEnabled(false)).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{name}/position", h.initPosition).Methods(http.MethodPut)

	return &Server{
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		options: opts,
		router:  r,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}

	log.Info("Starting HTTP Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
