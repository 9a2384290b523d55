package httptransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"

	"plant-detector-go/internal/domain/auth"
	"plant-detector-go/internal/platform/config"
	"plant-detector-go/internal/utils"
)

// RouteRegistrar mounts additional routes on the API group.
type RouteRegistrar interface {
	Register(ctx context.Context, group *gin.RouterGroup) error
}

// ServerOptions configures the HTTP transport.
type ServerOptions struct {
	Config *config.Config
	MCP    *server.MCPServer
	Logger *utils.Logger
	// Token verifies bearer tokens when transport.http.auth.enabled is set.
	Token    *auth.AuthToken
	Services []RouteRegistrar
}

// Server serves the streamable MCP endpoint plus the /api routes.
type Server struct {
	httpServer *http.Server
	streamable *server.StreamableHTTPServer
	router     *Router
	endpoint   string
	logger     *utils.Logger
	startedAt  time.Time
	authOn     bool
}

// NewServer wires the router, the MCP endpoint and every registrar.
func NewServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("http server requires config")
	}
	if opts.MCP == nil {
		return nil, errors.New("http server requires an MCP server")
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.DefaultLogger
	}
	httpCfg := opts.Config.Transport.HTTP

	var authMiddleware gin.HandlerFunc
	if httpCfg.Auth.Enabled {
		if opts.Token == nil {
			return nil, errors.New("http auth enabled but no token verifier configured")
		}
		authMiddleware = BearerAuth(opts.Token, logger)
	}

	router, err := Build(Options{
		Config:         opts.Config,
		Logger:         logger,
		AuthMiddleware: authMiddleware,
	})
	if err != nil {
		return nil, err
	}

	endpoint := httpCfg.Endpoint
	if endpoint == "" {
		endpoint = "/mcp"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	s := &Server{
		streamable: server.NewStreamableHTTPServer(opts.MCP,
			server.WithEndpointPath(endpoint),
			server.WithLogger(mcpLogger{logger: logger}),
		),
		router:    router,
		endpoint:  endpoint,
		logger:    logger,
		startedAt: time.Now(),
		authOn:    authMiddleware != nil,
	}

	mcpHandlers := make([]gin.HandlerFunc, 0, 2)
	if authMiddleware != nil {
		mcpHandlers = append(mcpHandlers, authMiddleware)
	}
	mcpHandlers = append(mcpHandlers, gin.WrapH(s.streamable))
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		router.Engine.Handle(method, endpoint, mcpHandlers...)
	}

	router.API.GET("/health", s.handleHealth)

	for _, svc := range opts.Services {
		if err := svc.Register(ctx, router.Protected()); err != nil {
			return nil, fmt.Errorf("register http service: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(httpCfg.IP, strconv.Itoa(httpCfg.Port)),
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the full route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router.Engine
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.InfoTag("Transport", "HTTP transport listening on %s (MCP endpoint %s, auth=%t)",
		s.httpServer.Addr, s.endpoint, s.authOn)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return s.streamable.Shutdown(ctx)
}

// HealthData is the payload of GET /api/health.
type HealthData struct {
	Status      string `json:"status"`
	MCPEndpoint string `json:"mcp_endpoint"`
	Auth        bool   `json:"auth"`
	Uptime      string `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, HealthData{
		Status:      "ok",
		MCPEndpoint: s.endpoint,
		Auth:        s.authOn,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}, "")
}

// mcpLogger adapts the tagged logger to mcp-go's util.Logger.
type mcpLogger struct {
	logger *utils.Logger
}

func (l mcpLogger) Infof(format string, v ...any) {
	l.logger.InfoTag("MCP", format, v...)
}

func (l mcpLogger) Errorf(format string, v ...any) {
	l.logger.ErrorTag("MCP", format, v...)
}
