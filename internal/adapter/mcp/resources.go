package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	orchestrationsURI  = "sofia://orchestrations"
	executionURIPrefix = "sofia://executions/"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			orchestrationsURI,
			"Orchestrations",
			mcplib.WithResourceDescription("Orchestrations of the current tenant"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleOrchestrationsResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			executionURIPrefix+"{id}",
			"Execution",
			mcplib.WithTemplateDescription("A single execution record"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleExecutionResource,
	)
}

func (s *Server) handleOrchestrationsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Orchestrations == nil {
		return nil, errors.New("orchestrations not configured")
	}
	items, err := s.deps.Orchestrations.List(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, items)
}

func (s *Server) handleExecutionResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executions == nil {
		return nil, errors.New("executions not configured")
	}
	id := strings.TrimPrefix(req.Params.URI, executionURIPrefix)
	if id == "" || id == req.Params.URI {
		return nil, errors.New("execution id is required")
	}
	exec, err := s.deps.Executions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, exec)
}

func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}
