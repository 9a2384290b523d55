package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"plant-detector-go/internal/bootstrap"
	domainmcp "plant-detector-go/internal/domain/mcp"
	platformerrors "plant-detector-go/internal/platform/errors"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = domainmcp.DefaultVersion

// exitError carries a process exit code without printing anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitCode maps a command error to a process status. Configuration problems
// use EX_CONFIG (78) so service managers stop restarting a broken install.
func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	switch platformerrors.KindOf(err) {
	case platformerrors.KindConfig:
		return 78
	default:
		return 1
	}
}

func isSilentExit(err error) bool {
	var exitErr *exitError
	return errors.As(err, &exitErr)
}

// AppOption customizes App dependencies.
type AppOption func(*App)

// WithIO injects process I/O streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) AppOption {
	return func(a *App) {
		if stdin != nil {
			a.stdin = stdin
		}
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// App holds CLI state. stdout is reserved for protocol and command output, logs go to stderr.
type App struct {
	root *cobra.Command

	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	cfgFile   string
	transport string
	failOnErr bool
}

// NewApp builds the command tree.
func NewApp(opts ...AppOption) *App {
	a := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.root = a.newRootCommand()
	return a
}

// Execute runs the root command.
func (a *App) Execute() error {
	return a.root.Execute()
}

// ExecuteContext runs the root command with ctx, used by tests.
func (a *App) ExecuteContext(ctx context.Context, args ...string) error {
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

func (a *App) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "plant-detector",
		Short: "Plant disease diagnosis exposed as an MCP tool",
		Long: `plant-detector exposes the analyze_plant tool to MCP hosts.

Without a subcommand it behaves like "serve". Configuration comes from
config.yaml, .env and the process environment (XAI_API_KEY, XAI_BASE_URL).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./config.yaml or $PLANT_DETECTOR_CONFIG)")
	root.PersistentFlags().StringVar(&a.transport, "transport", "", "override transport.type (stdio or http)")

	root.AddCommand(a.newServeCommand())
	root.AddCommand(a.newDiagnoseCommand())
	root.AddCommand(a.newTokenCommand())
	root.AddCommand(a.newVersionCommand())
	return root
}

func (a *App) options() bootstrap.Options {
	return bootstrap.Options{
		ConfigPath: a.cfgFile,
		Transport:  a.transport,
		Console:    a.stderr,
		Stdin:      a.stdin,
		Stdout:     a.stdout,
	}
}

func (a *App) newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tool until interrupted or stdin closes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *App) runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return bootstrap.Run(ctx, a.options())
}

func (a *App) newDiagnoseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose <image>",
		Short: "Analyse one image and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap.Prepare(ctx, a.options())
			if err != nil {
				return err
			}
			defer rt.Close()

			outcome := rt.Diagnosis.AnalyzePath(ctx, args[0])
			if _, err := fmt.Fprintln(a.stdout, outcome.JSON()); err != nil {
				return err
			}
			if a.failOnErr && outcome.IsError() {
				return &exitError{code: 2}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&a.failOnErr, "fail-on-error", false, "exit with status 2 when the result is an error payload")
	return cmd
}

func (a *App) newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the HTTP transport",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := strings.TrimSpace(args[0])
			rt, err := bootstrap.Prepare(cmd.Context(), a.options())
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.Token == nil {
				return fmt.Errorf("no auth secret configured: set transport.http.auth.secret or PLANT_DETECTOR_AUTH_SECRET")
			}
			token, err := rt.Token.GenerateToken(subject)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, token)
			return err
		},
	}
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "%s %s\n", domainmcp.DefaultName, Version)
		},
	}
}
