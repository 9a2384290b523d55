package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-detector-go/internal/domain/auth"
	platformconfig "plant-detector-go/internal/platform/config"
	platformerrors "plant-detector-go/internal/platform/errors"
)

func setupEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		platformconfig.EnvConfigPath,
		platformconfig.EnvAPIKey,
		platformconfig.EnvBaseURL,
		platformconfig.EnvModel,
		platformconfig.EnvTransport,
		platformconfig.EnvLogLevel,
		platformconfig.EnvAuthSecret,
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf("log:\n  log_dir: %s\n  log_file: cli.log\n%s", filepath.Join(dir, "logs"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	setupEnv(t)
	var stdout, stderr bytes.Buffer
	app := NewApp(WithIO(strings.NewReader(stdin), &stdout, &stderr))
	err := app.ExecuteContext(context.Background(), args...)
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "Plant Detector Pro "+Version+"\n", out)
}

func TestDiagnoseCommand_MissingImage(t *testing.T) {
	cfg := writeConfig(t, "")
	missing := filepath.Join(t.TempDir(), "nope.jpg")

	out, logs, err := run(t, "", "diagnose", "--config", cfg, missing)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "Image file not found. Please check the path.", payload["error"])
	assert.NotContains(t, out, "Analyzing image", "logs stay on stderr")
	assert.Contains(t, logs, "Analyzing image")
}

func TestDiagnoseCommand_FailOnError(t *testing.T) {
	cfg := writeConfig(t, "")

	_, _, err := run(t, "", "diagnose", "--config", cfg, "--fail-on-error", filepath.Join(t.TempDir(), "nope.jpg"))
	var exitErr *exitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.code)
}

func TestDiagnoseCommand_RequiresOneArg(t *testing.T) {
	_, _, err := run(t, "", "diagnose")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	cfg := writeConfig(t, "transport:\n  http:\n    auth:\n      secret: cli-secret\n")

	out, _, err := run(t, "", "token", "--config", cfg, "desktop-client")
	require.NoError(t, err)

	subject, err := auth.NewAuthToken("cli-secret").VerifyToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "desktop-client", subject)
}

func TestTokenCommand_NoSecret(t *testing.T) {
	cfg := writeConfig(t, "")

	_, _, err := run(t, "", "token", "--config", cfg, "someone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no auth secret configured")
}

func TestServeCommand_StdioUntilEOF(t *testing.T) {
	cfg := writeConfig(t, "")
	stdin := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"cli","version":"0"}}}` + "\n"

	out, _, err := run(t, stdin, "serve", "--config", cfg, "--transport", "stdio")
	require.NoError(t, err)
	assert.Contains(t, out, `"serverInfo"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "exit status 2", (&exitError{code: 2}).Error())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"explicit status", &exitError{code: 2}, 2},
		{"wrapped status", fmt.Errorf("diagnose: %w", &exitError{code: 2}), 2},
		{"config error", platformerrors.New(platformerrors.KindConfig, "config:load", "bad transport"), 78},
		{"vision error", platformerrors.New(platformerrors.KindVision, "vision:init-client", "no key"), 1},
		{"plain error", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
	assert.True(t, isSilentExit(&exitError{code: 2}))
	assert.False(t, isSilentExit(errors.New("boom")))
}

func TestServeCommand_MissingConfigIsConfigError(t *testing.T) {
	_, _, err := run(t, "", "serve", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, 78, exitCode(err))
}
