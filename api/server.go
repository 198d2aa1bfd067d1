// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api serves the runner's JSON-RPC status API, its metrics and a
// health probe over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cjson "github.com/ava-labs/avalanchego/utils/json"
	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/wasmrunner/version"
)

const (
	RPCPath     = "/ext/" + version.Name
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"

	// SandboxServiceName is the JSON-RPC name of the sandbox service.
	SandboxServiceName = "sandbox"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// NewRPCServer registers [service] as "wasmrunner" and, if set, [sandbox]
// as "sandbox" on a JSON-RPC server.
func NewRPCServer(service *Service, sandbox *SandboxService) (*rpc.Server, error) {
	server := rpc.NewServer()
	codec := cjson.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")

	if err := server.RegisterService(service, version.Name); err != nil {
		return nil, fmt.Errorf("failed to register %s service: %w", version.Name, err)
	}
	if sandbox == nil {
		return server, nil
	}
	if err := server.RegisterService(sandbox, SandboxServiceName); err != nil {
		return nil, fmt.Errorf("failed to register %s service: %w", SandboxServiceName, err)
	}
	return server, nil
}

// HealthFunc reports why the runner is unhealthy, or nil.
type HealthFunc func(ctx context.Context) error

// Server exposes the JSON-RPC API, /metrics and /healthz.
type Server struct {
	log     log.Logger
	handler http.Handler
}

func NewServer(rpcHandler http.Handler, gatherer prometheus.Gatherer, health HealthFunc, logger log.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(RPCPath, rpcHandler)
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		reply := healthReply{Healthy: true}
		status := http.StatusOK
		if health != nil {
			if err := health(r.Context()); err != nil {
				reply = healthReply{Error: err.Error()}
				status = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			logger.Debug("failed to write health reply", "err", err)
		}
	})
	return &Server{
		log:     logger,
		handler: mux,
	}
}

type healthReply struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on [listener] until [ctx] is done, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	s.log.Info("serving API", "address", listener.Addr())

	select {
	case err := <-errCh:
		return fmt.Errorf("API server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
