// Package server exposes the driver over the network. All runs share one
// Session through a VMWorker.
package server

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"

	"github.com/chazu/embedrun/driver"
	"github.com/chazu/embedrun/journal"
	"github.com/chazu/embedrun/vm"
)

var log = commonlog.GetLogger("embedrun.server")

// RunServer serves the run service over Connect (HTTP/JSON and binary
// protobuf) and, when registered, gRPC.
type RunServer struct {
	worker *VMWorker
	svc    *RunService
	mux    *http.ServeMux
}

// ServerOption configures a RunServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	mode     driver.LoadingMode
	journal  *journal.Journal
	handlers []connect.HandlerOption
}

// WithLoadingMode limits which operations remote callers may use.
// Defaults to driver.SourceAllowed.
func WithLoadingMode(mode driver.LoadingMode) ServerOption {
	return func(c *serverConfig) { c.mode = mode }
}

// WithJournal records every remote run.
func WithJournal(j *journal.Journal) ServerOption {
	return func(c *serverConfig) { c.journal = j }
}

// WithHandlerOptions passes options through to the Connect handlers.
func WithHandlerOptions(opts ...connect.HandlerOption) ServerOption {
	return func(c *serverConfig) { c.handlers = append(c.handlers, opts...) }
}

// New creates a RunServer around a session that has already been set up
// with d.Setup.
func New(s *vm.Session, d *driver.Driver, opts ...ServerOption) *RunServer {
	cfg := &serverConfig{mode: driver.SourceAllowed}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewVMWorker(s)
	srv := &RunServer{
		worker: worker,
		svc:    NewRunService(worker, d, cfg.mode, cfg.journal),
		mux:    http.NewServeMux(),
	}
	srv.svc.connectHandlers(srv.mux, cfg.handlers...)
	return srv
}

// Handler returns the HTTP handler serving the Connect procedures.
func (s *RunServer) Handler() http.Handler {
	return s.mux
}

// RegisterGRPC registers the run service on a gRPC server.
func (s *RunServer) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&runServiceDesc, s.svc)
}

// ListenAndServe starts the HTTP server on addr ("host:port" or ":port").
func (s *RunServer) ListenAndServe(addr string) error {
	log.Noticef("embedrun server listening on %s", addr)
	log.Infof("  Connect: http://%s%s", addr, Procedure(driver.OpRunSource))
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the VM worker.
func (s *RunServer) Stop() {
	s.worker.Stop()
}
