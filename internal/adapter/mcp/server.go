// Package mcp exposes orchestrations as Model Context Protocol tools over
// streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/middleware"
	"github.com/Strob0t/Sofia/internal/service"
)

const endpointPath = "/mcp"

// OrchestrationReader lists the caller's orchestrations.
type OrchestrationReader interface {
	List(ctx context.Context) ([]orchestration.Orchestration, error)
}

// ExecutionRunner starts executions and reads their records.
type ExecutionRunner interface {
	Execute(ctx context.Context, orchestrationID string, req service.ExecuteRequest) (*service.ExecutionReport, error)
	Get(ctx context.Context, id string) (*execution.Execution, error)
}

// ServerConfig holds the listener and identity of the MCP server.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string // empty disables authentication
}

// ServerDeps are the services behind the tools. Nil deps make the
// corresponding tools report "not configured".
type ServerDeps struct {
	Orchestrations OrchestrationReader
	Executions     ExecutionRunner
}

// Server wraps an mcp-go server and its HTTP listener.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates the MCP server and registers tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler returns the authenticated streamable HTTP handler. The tenant is
// taken from the X-Tenant-ID header of each request.
func (s *Server) Handler() http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithHTTPContextFunc(tenantFromRequest),
	)
	mux := http.NewServeMux()
	mux.Handle(endpointPath, AuthMiddleware(s.cfg.APIKey, streamable))
	return mux
}

func tenantFromRequest(ctx context.Context, r *http.Request) context.Context {
	tid := r.Header.Get("X-Tenant-ID")
	if tid == "" {
		tid = middleware.DefaultTenantID
	}
	return middleware.WithTenantID(ctx, tid)
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String(), "path", endpointPath)
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
