// Package mcp exposes the plant diagnosis as an MCP tool.
package mcp

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"plant-detector-go/internal/domain/diagnosis"
	"plant-detector-go/internal/platform/observability"
	"plant-detector-go/internal/utils"
)

const (
	DefaultName    = "Plant Detector Pro"
	DefaultVersion = "1.0.0"
)

// Analyzer is the diagnosis entry point used by the tool handler.
type Analyzer interface {
	AnalyzePath(ctx context.Context, path string) diagnosis.Outcome
}

// Options configures the MCP server.
type Options struct {
	Name         string
	Version      string
	Instructions string
	Logger       *utils.Logger
}

// Server wraps an mcp-go server with the analyze_plant tool registered.
type Server struct {
	mcp      *server.MCPServer
	analyzer Analyzer
	logger   *utils.Logger
	tools    []string
}

// NewServer builds the server and registers its tools.
func NewServer(analyzer Analyzer, opts Options) (*Server, error) {
	if analyzer == nil {
		return nil, errors.New("mcp: analyzer is required")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = DefaultName
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = DefaultVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.DefaultLogger
	}

	s := &Server{analyzer: analyzer, logger: logger}

	serverOpts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(s.hooks()),
		server.WithToolHandlerMiddleware(spanMiddleware),
	}
	if opts.Instructions != "" {
		serverOpts = append(serverOpts, server.WithInstructions(opts.Instructions))
	}
	s.mcp = server.NewMCPServer(name, version, serverOpts...)

	s.addTool(analyzePlantTool(), s.handleAnalyzePlant)

	logger.InfoTag("MCP", "server %s %s ready with tools %v", name, version, s.tools)
	return s, nil
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

// MCPServer returns the underlying server for transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Tools lists registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// ServeStdio speaks MCP over in/out until ctx is cancelled or in is closed.
// Protocol errors go to the logger, never to out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(logWriter{logger: s.logger}, "", 0))

	s.logger.InfoTag("MCP", "serving over stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)) {
		return nil
	}
	return err
}

func (s *Server) hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		s.logger.DebugTag("MCP", "tools/call %s id=%v", req.Params.Name, id)
	})
	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result *mcp.CallToolResult) {
		s.logger.DebugTag("MCP", "tools/call %s id=%v done", req.Params.Name, id)
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		s.logger.WarnTag("MCP", "%s id=%v failed: %v", method, id, err)
	})
	return hooks
}

func spanMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		ctx, end := observability.StartSpan(ctx, "mcp.tool", req.Params.Name)
		defer func() { end(err) }()
		return next(ctx, req)
	}
}

// logWriter feeds log.Logger output into the tagged logger.
type logWriter struct {
	logger *utils.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.ErrorTag("MCP", strings.TrimSpace(string(p)))
	return len(p), nil
}
