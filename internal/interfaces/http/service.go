package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	interfaces "github.com/tdex-network/tdex-authtrade/internal/interfaces"
)

const (
	defaultDeadline = 10 * time.Minute
	shutdownTimeout = 5 * time.Second
)

type ServiceOpts struct {
	Address     string
	ExecutorSvc ExecutorService
	// Trader is used for requests that don't specify one.
	Trader common.Address
	// DefaultDeadline is added to the current time for requests without
	// deadline.
	DefaultDeadline time.Duration
	// Gatherer, if defined, is exposed at /metrics.
	Gatherer prometheus.Gatherer
}

func (o ServiceOpts) validate() error {
	if o.Address == "" {
		return fmt.Errorf("missing listening address")
	}
	if _, _, err := net.SplitHostPort(o.Address); err != nil {
		return fmt.Errorf("invalid listening address: %s", err)
	}
	if o.ExecutorSvc == nil {
		return fmt.Errorf("executor app service must not be null")
	}
	if o.DefaultDeadline < 0 {
		return fmt.Errorf("default deadline must not be negative")
	}
	return nil
}

type service struct {
	opts   ServiceOpts
	server *http.Server
}

// NewService returns the HTTP interface of the daemon.
func NewService(opts ServiceOpts) (interfaces.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %s", err)
	}
	if opts.DefaultDeadline == 0 {
		opts.DefaultDeadline = defaultDeadline
	}

	return &service{
		opts: opts,
		server: &http.Server{
			Addr:              opts.Address,
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewRouter returns the routes of the HTTP interface.
func NewRouter(opts ServiceOpts) http.Handler {
	if opts.DefaultDeadline == 0 {
		opts.DefaultDeadline = defaultDeadline
	}
	h := &handler{
		executor:        opts.ExecutorSvc,
		trader:          opts.Trader,
		defaultDeadline: opts.DefaultDeadline,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(api chi.Router) {
		api.Post("/quote", h.quote)
		api.Get("/traders/{address}/nonce", h.nonce)
		api.Route("/executions", func(exec chi.Router) {
			exec.Post("/", h.execute)
			exec.Get("/", h.listExecutions)
			exec.Get("/{id}", h.getExecution)
			exec.Get("/{id}/stream", h.stream)
			exec.Post("/{id}/cancel", h.cancel)
			exec.Post("/{id}/retry", h.retry)
			exec.Delete("/{id}", h.acknowledge)
		})
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *service) Start() error {
	lis, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(lis); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http interface stopped unexpectedly")
		}
	}()
	log.Infof("http interface listening on %s", s.opts.Address)
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop http interface")
	}
	log.Debug("disabled http interface")
}
