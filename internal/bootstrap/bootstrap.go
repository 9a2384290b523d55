package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	domainauth "plant-detector-go/internal/domain/auth"
	"plant-detector-go/internal/domain/diagnosis"
	"plant-detector-go/internal/domain/eventbus"
	domainimage "plant-detector-go/internal/domain/image"
	domainmcp "plant-detector-go/internal/domain/mcp"
	"plant-detector-go/internal/domain/vision"
	platformconfig "plant-detector-go/internal/platform/config"
	platformerrors "plant-detector-go/internal/platform/errors"
	platformlogging "plant-detector-go/internal/platform/logging"
	platformobservability "plant-detector-go/internal/platform/observability"
	httptransport "plant-detector-go/internal/transport/http"
	"plant-detector-go/internal/transport/http/diagnose"
	"plant-detector-go/internal/utils"
)

const (
	logTag = "Bootstrap"

	eventWorkers   = 4
	eventQueueSize = 256

	shutdownTimeout     = 15 * time.Second
	httpShutdownTimeout = 10 * time.Second
)

// Options controls how the runtime is assembled.
type Options struct {
	// ConfigPath points at a YAML file; empty falls back to config.yaml and the environment.
	ConfigPath string
	// Transport overrides transport.type when set.
	Transport string
	// Console receives human-readable logs; nil means stderr.
	Console io.Writer
	Stdin   io.Reader
	Stdout  io.Writer
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	opts                  Options
	config                *platformconfig.Config
	configPath            string
	configNotes           []string
	logProvider           *platformlogging.Logger
	logger                *utils.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	events                *eventbus.AsyncEventBus
	visionClient          vision.Client
	prompt                string
	loader                *domainimage.Loader
	diagnosis             *diagnosis.Service
	mcpServer             *domainmcp.Server
	authToken             *domainauth.AuthToken
}

// Runtime is a fully initialised process. Close must be called once.
type Runtime struct {
	Config    *platformconfig.Config
	Logger    *utils.Logger
	Diagnosis *diagnosis.Service
	MCP       *domainmcp.Server
	// Token is nil when no auth secret is configured.
	Token *domainauth.AuthToken

	state *appState
	steps []initStep
}

// Prepare runs the init graph and returns the assembled runtime without serving anything.
func Prepare(ctx context.Context, opts Options) (*Runtime, error) {
	state := &appState{opts: opts}
	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return nil, err
	}
	if state.config == nil || state.logger == nil || state.diagnosis == nil || state.mcpServer == nil {
		state.close()
		return nil, platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"runtime not fully initialised",
		)
	}

	return &Runtime{
		Config:    state.config,
		Logger:    state.logger,
		Diagnosis: state.diagnosis,
		MCP:       state.mcpServer,
		Token:     state.authToken,
		state:     state,
		steps:     steps,
	}, nil
}

// Close stops the event bus, observability hooks and the logger.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	r.state.close()
}

func (s *appState) close() {
	if s.events != nil {
		s.events.Stop()
		if n := s.events.Dropped(); n > 0 && s.logger != nil {
			s.logger.WarnTag(logTag, "event bus dropped %d analysis events", n)
		}
	}
	if shutdown := s.observabilityShutdown; shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdown(shutdownCtx); err != nil && s.logger != nil {
			s.logger.WarnTag(logTag, "observability did not shut down cleanly: %v", err)
		}
		cancel()
	}
	if s.logProvider != nil {
		_ = s.logProvider.Close()
	}
}

// Run starts the whole service lifecycle: init graph, transport, graceful shutdown.
func Run(ctx context.Context, opts Options) error {
	rt, err := Prepare(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := rt.Logger
	logBootstrapGraph(rt.steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(rt.state, group, groupCtx, cancel); err != nil {
		cancel()
		_ = group.Wait()
		return err
	}

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *utils.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag(logTag, "init graph (%d steps)", len(steps))
	for i, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag(logTag, "  %d. %s [%s]", i+1, step.Title, step.ID)
			continue
		}
		logger.InfoTag(logTag, "  %d. %s [%s] after %s", i+1, step.Title, step.ID, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := ctx.Err(); err != nil {
			return platformerrors.Wrap(platformerrors.KindBootstrap, step.ID, "bootstrap cancelled", err)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the init steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "eventbus:start",
			Title:     "Start event bus",
			DependsOn: []string{"logging:init-provider"},
			Execute:   startEventBusStep,
		},
		{
			ID:        "vision:init-client",
			Title:     "Initialise vision client",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindVision,
			Execute:   initVisionStep,
		},
		{
			ID:        "diagnosis:init-service",
			Title:     "Initialise diagnosis service",
			DependsOn: []string{"vision:init-client", "eventbus:start"},
			Kind:      platformerrors.KindDomain,
			Execute:   initDiagnosisStep,
		},
		{
			ID:        "mcp:init-server",
			Title:     "Initialise MCP server",
			DependsOn: []string{"diagnosis:init-service"},
			Execute:   initMCPServerStep,
		},
		{
			ID:        "auth:init-token",
			Title:     "Initialise token authority",
			DependsOn: []string{"logging:init-provider"},
			Execute:   initAuthStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().WithPath(state.opts.ConfigPath).Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load config", err)
	}

	if override := strings.TrimSpace(state.opts.Transport); override != "" {
		switch strings.ToLower(override) {
		case platformconfig.TransportStdio, platformconfig.TransportHTTP:
			result.Config.Transport.Type = strings.ToLower(override)
		default:
			return platformerrors.New(platformerrors.KindConfig, "config:load",
				fmt.Sprintf("unsupported transport type: %q", override))
		}
		httpCfg := result.Config.Transport.HTTP
		if result.Config.Transport.Type == platformconfig.TransportHTTP && httpCfg.Auth.Enabled && httpCfg.Auth.Secret == "" {
			return platformerrors.New(platformerrors.KindConfig, "config:load", "http auth enabled but no secret configured")
		}
	}

	state.config = result.Config
	state.configPath = result.Path
	state.configNotes = result.Notes
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logProvider, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
		Console:  state.opts.Console,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logProvider = logProvider
	state.logger = logProvider.Legacy()
	state.slogger = logProvider.Slog()
	utils.DefaultLogger = state.logger

	logFile := logProvider.FilePath()
	if logFile == "" {
		logFile = "console only"
	}
	state.logger.InfoTag(logTag, "logging ready [%s] config=%s file=%s", state.config.Log.Level, state.configPath, logFile)
	for _, note := range state.configNotes {
		state.logger.InfoTag("Config", "%s", note)
	}
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{
		Enabled: state.config.Observability.Enabled,
	}, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	if platformobservability.Enabled() && !state.slogger.Enabled(ctx, slog.LevelDebug) {
		state.logger.WarnTag(logTag, "observability enabled but log level %s hides span and metric records", state.config.Log.Level)
	}
	return nil
}

func startEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventWorkers, eventQueueSize, state.logger)
	if err := eventbus.SetupEventHandlers(bus, state.logger); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "eventbus:start", "failed to subscribe event handlers", err)
	}
	bus.Start()
	state.events = bus
	return nil
}

func initVisionStep(_ context.Context, state *appState) error {
	cfg := state.config.Vision
	client, err := vision.NewOpenAIClient(vision.Config{
		ModelName: cfg.ModelName,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
		Timeout:   platformconfig.Duration(cfg.RequestTimeout),
	}, state.logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindVision, "vision:init-client", "failed to create vision client", err)
	}
	state.visionClient = client
	state.logger.InfoTag("Vision", "vision client ready: %s", client.Describe())
	return nil
}

func initDiagnosisStep(_ context.Context, state *appState) error {
	cfg := state.config.Diagnosis

	prompt, err := diagnosis.LoadPrompt(cfg.PromptFile)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "diagnosis:init-service", "failed to load prompt", err)
	}
	if cfg.PromptFile != "" {
		state.logger.InfoTag("Diagnosis", "using prompt override %s", cfg.PromptFile)
	}
	state.prompt = prompt

	state.loader = domainimage.NewLoader(domainimage.Options{
		MIMEType: cfg.ImageMIMEType,
		Logger:   state.logger,
	})

	service, err := diagnosis.NewService(state.loader, state.visionClient, diagnosis.Options{
		Prompt:           prompt,
		MaxTokens:        state.config.Vision.MaxTokens,
		StrictValidation: cfg.StrictValidation,
		Events:           state.events,
		Logger:           state.logger,
	})
	if err != nil {
		return err
	}
	state.diagnosis = service
	if cfg.StrictValidation {
		state.logger.InfoTag("Diagnosis", "strict schema validation enabled")
	}
	return nil
}

func initMCPServerStep(_ context.Context, state *appState) error {
	cfg := state.config.MCP
	server, err := domainmcp.NewServer(state.diagnosis, domainmcp.Options{
		Name:         cfg.Name,
		Version:      cfg.Version,
		Instructions: cfg.Instructions,
		Logger:       state.logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "mcp:init-server", "failed to create MCP server", err)
	}
	state.mcpServer = server
	state.logger.InfoTag("MCP", "server ready, tools: %s", strings.Join(server.Tools(), ", "))
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	cfg := state.config.Transport.HTTP.Auth
	if cfg.Secret == "" {
		state.logger.DebugTag("Auth", "no auth secret configured, token authority disabled")
		return nil
	}
	token := domainauth.NewAuthToken(cfg.Secret)
	if ttl := platformconfig.Duration(cfg.TokenTTL); ttl > 0 {
		token = token.WithTTL(ttl)
	}
	state.authToken = token
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context, cancel context.CancelFunc) error {
	switch strings.ToLower(state.config.Transport.Type) {
	case platformconfig.TransportHTTP:
		return startHTTPServer(state, g, groupCtx, cancel)
	default:
		startStdioServer(state, g, groupCtx, cancel)
		return nil
	}
}

func startStdioServer(state *appState, g *errgroup.Group, groupCtx context.Context, cancel context.CancelFunc) {
	in := state.opts.Stdin
	if in == nil {
		in = os.Stdin
	}
	out := state.opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	logger := state.logger

	g.Go(func() error {
		// stdin closing ends the session and the process with it
		defer cancel()
		if err := state.mcpServer.ServeStdio(groupCtx, in, out); err != nil {
			logger.ErrorTag("MCP", "stdio server failed: %v", err)
			return platformerrors.Wrap(platformerrors.KindTransport, "mcp:serve-stdio", "stdio server failed", err)
		}
		logger.InfoTag("MCP", "stdio session closed")
		return nil
	})
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context, cancel context.CancelFunc) error {
	logger := state.logger

	diagnoseService, err := diagnose.NewService(state.diagnosis, state.loader, state.config.Vision.ModelName, logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:init-diagnose", "failed to create diagnose service", err)
	}

	server, err := httptransport.NewServer(groupCtx, httptransport.ServerOptions{
		Config:   state.config,
		MCP:      state.mcpServer.MCPServer(),
		Logger:   logger,
		Token:    state.authToken,
		Services: []httptransport.RouteRegistrar{diagnoseService},
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:init-server", "failed to create http server", err)
	}

	g.Go(func() error {
		defer cancel()
		logger.InfoTag("HTTP", "listening on http://%s%s", server.Addr(), state.config.Transport.HTTP.Endpoint)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "http shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "http server shut down")
			}
		}()

		if err := server.Start(); err != nil {
			logger.ErrorTag("HTTP", "http server failed: %v", err)
			return platformerrors.Wrap(platformerrors.KindTransport, "http:serve", "http server failed", err)
		}
		return nil
	})
	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *utils.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag(logTag, "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag(logTag, "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag(logTag, "all services stopped")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag(logTag, "shutdown timed out after %s", shutdownTimeout)
		return errors.New("shutdown timed out")
	}
	return nil
}
