package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-detector-go/internal/domain/auth"
	"plant-detector-go/internal/domain/diagnosis"
	domainmcp "plant-detector-go/internal/domain/mcp"
	"plant-detector-go/internal/platform/config"
)

type fixedAnalyzer struct {
	outcome diagnosis.Outcome
}

func (f fixedAnalyzer) AnalyzePath(context.Context, string) diagnosis.Outcome {
	return f.outcome
}

func newTestServer(t *testing.T, authEnabled bool) (*Server, *auth.AuthToken) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Transport.Type = config.TransportHTTP
	cfg.Transport.HTTP.Auth.Enabled = authEnabled
	cfg.Transport.HTTP.Auth.Secret = "test-secret"

	mcpServer, err := domainmcp.NewServer(fixedAnalyzer{
		outcome: diagnosis.Normalize(`{"health_status":"unhealthy","disease_detected":"Bitter rot"}`),
	}, domainmcp.Options{})
	require.NoError(t, err)

	token := auth.NewAuthToken(cfg.Transport.HTTP.Auth.Secret)
	srv, err := NewServer(context.Background(), ServerOptions{
		Config: cfg,
		MCP:    mcpServer.MCPServer(),
		Token:  token,
	})
	require.NoError(t, err)
	return srv, token
}

func postMCP(t *testing.T, h http.Handler, body, sessionID, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0.0.1"}}}`
const callBody = `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"analyze_plant","arguments":{"image_path":"/leaf.jpg"}}}`

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool       `json:"success"`
		Data    HealthData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Data.Status)
	assert.Equal(t, "/mcp", resp.Data.MCPEndpoint)
	assert.False(t, resp.Data.Auth)
	assert.Equal(t, "0.0.0.0:8080", srv.Addr())
}

func TestStreamableMCP_InitializeThenCall(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Handler()

	initRec := postMCP(t, h, initializeBody, "", "")
	require.Equal(t, http.StatusOK, initRec.Code, initRec.Body.String())
	sessionID := initRec.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	callRec := postMCP(t, h, callBody, sessionID, "")
	require.Equal(t, http.StatusOK, callRec.Code, callRec.Body.String())

	var resp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(callRec.Body.Bytes(), &resp))
	require.Len(t, resp.Result.Content, 1)
	assert.JSONEq(t, `{"health_status":"unhealthy","disease_detected":"Bitter rot"}`, resp.Result.Content[0].Text)
}

func TestStreamableMCP_RequiresBearerWhenAuthEnabled(t *testing.T) {
	srv, token := newTestServer(t, true)
	h := srv.Handler()

	rec := postMCP(t, h, initializeBody, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postMCP(t, h, initializeBody, "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	signed, err := token.GenerateToken("desktop-client")
	require.NoError(t, err)
	rec = postMCP(t, h, initializeBody, "", signed)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth_OpenWhenAuthEnabled(t *testing.T) {
	srv, _ := newTestServer(t, true)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"auth":true`)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(context.Background(), ServerOptions{})
	assert.Error(t, err)

	cfg := config.DefaultConfig()
	cfg.Transport.HTTP.Auth.Enabled = true
	mcpServer, err := domainmcp.NewServer(fixedAnalyzer{}, domainmcp.Options{})
	require.NoError(t, err)
	_, err = NewServer(context.Background(), ServerOptions{Config: cfg, MCP: mcpServer.MCPServer()})
	assert.ErrorContains(t, err, "no token verifier")
}

func TestBuild_RequiresConfig(t *testing.T) {
	_, err := Build(Options{})
	assert.Error(t, err)
}
