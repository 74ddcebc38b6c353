package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/service"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listOrchestrationsTool(),
		s.runOrchestrationTool(),
		s.getExecutionTool(),
	)
}

func (s *Server) listOrchestrationsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_orchestrations",
		mcplib.WithDescription("List the orchestrations of the current tenant"),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListOrchestrations}
}

func (s *Server) runOrchestrationTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("run_orchestration",
		mcplib.WithDescription("Run an active orchestration synchronously and return the execution with its dispatch results"),
		mcplib.WithString("orchestration_id",
			mcplib.Required(),
			mcplib.Description("The orchestration to run"),
		),
		mcplib.WithString("input",
			mcplib.Description("Input for the first step. JSON is passed through, anything else is sent as text"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRunOrchestration}
}

func (s *Server) getExecutionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_execution",
		mcplib.WithDescription("Get an execution record by ID"),
		mcplib.WithString("execution_id",
			mcplib.Required(),
			mcplib.Description("The execution ID to look up"),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetExecution}
}

func (s *Server) handleListOrchestrations(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Orchestrations == nil {
		return mcplib.NewToolResultError("orchestrations not configured"), nil
	}
	items, err := s.deps.Orchestrations.List(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list orchestrations", err), nil
	}
	return jsonResult(items)
}

func (s *Server) handleRunOrchestration(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executions == nil {
		return mcplib.NewToolResultError("executions not configured"), nil
	}
	orchID := req.GetString("orchestration_id", "")
	if orchID == "" {
		return mcplib.NewToolResultError("orchestration_id is required"), nil
	}

	report, err := s.deps.Executions.Execute(ctx, orchID, service.ExecuteRequest{
		Input: toolInput(req.GetString("input", "")),
	})
	if err != nil {
		var failed *service.ExecutionFailedError
		if errors.As(err, &failed) {
			return mcplib.NewToolResultError(fmt.Sprintf("execution %s failed: %s", failed.ExecutionID, failed.Error())), nil
		}
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to run orchestration %s", orchID), err), nil
	}
	return jsonResult(report)
}

func (s *Server) handleGetExecution(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executions == nil {
		return mcplib.NewToolResultError("executions not configured"), nil
	}
	id := req.GetString("execution_id", "")
	if id == "" {
		return mcplib.NewToolResultError("execution_id is required"), nil
	}
	exec, err := s.deps.Executions.Get(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get execution %s", id), err), nil
	}
	return jsonResult(exec)
}

// toolInput maps the free-form tool argument onto an execution input.
func toolInput(s string) json.RawMessage {
	switch {
	case s == "":
		return nil
	case json.Valid([]byte(s)):
		return json.RawMessage(s)
	default:
		return execution.TextInput(s)
	}
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
