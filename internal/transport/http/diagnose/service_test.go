package diagnose

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-detector-go/internal/domain/diagnosis"
	"plant-detector-go/internal/domain/image"
)

type recordingAnalyzer struct {
	got     []image.EncodedImage
	outcome diagnosis.Outcome
}

func (r *recordingAnalyzer) Analyze(_ context.Context, img image.EncodedImage) diagnosis.Outcome {
	r.got = append(r.got, img)
	return r.outcome
}

func newEngine(t *testing.T, analyzer Analyzer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := NewService(analyzer, image.NewLoader(image.Options{}), "grok-2-vision-1212", nil)
	require.NoError(t, err)

	engine := gin.New()
	require.NoError(t, svc.Register(context.Background(), engine.Group("/api")))
	return engine
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("note", "no file"))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestPostDiagnose_ReturnsOutcomeJSON(t *testing.T) {
	analyzer := &recordingAnalyzer{outcome: diagnosis.Normalize(`{"plant_part":"leaves"}`)}
	engine := newEngine(t, analyzer)

	body, contentType := multipartBody(t, "file", "leaf.jpg", []byte{0xFF, 0xD8, 0xFF})
	req := httptest.NewRequest(http.MethodPost, "/api/diagnose", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{\n  \"plant_part\": \"leaves\"\n}", rec.Body.String())
	require.Len(t, analyzer.got, 1)
	assert.Equal(t, "upload:leaf.jpg", analyzer.got[0].Path)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", analyzer.got[0].DataURI())
}

func TestPostDiagnose_ErrorPayloadStill200(t *testing.T) {
	analyzer := &recordingAnalyzer{outcome: diagnosis.APIError(assert.AnError)}
	engine := newEngine(t, analyzer)

	body, contentType := multipartBody(t, "file", "leaf.png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/api/diagnose", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload["error"], "API Error: ")
	assert.Len(t, payload["checklist"], 3)
}

func TestPostDiagnose_BadRequests(t *testing.T) {
	analyzer := &recordingAnalyzer{}
	engine := newEngine(t, analyzer)

	type uploadCase struct {
		name        string
		body        *bytes.Buffer
		contentType string
	}
	missingBody, missingType := multipartBody(t, "", "", nil)
	emptyBody, emptyType := multipartBody(t, "file", "empty.jpg", nil)
	tests := []uploadCase{
		{"not multipart", bytes.NewBufferString(`{"image_path":"x"}`), "application/json"},
		{"missing file", missingBody, missingType},
		{"empty file", emptyBody, emptyType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/diagnose", tt.body)
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"success":false`)
		})
	}
	assert.Empty(t, analyzer.got)
}

func TestGetDiagnose(t *testing.T) {
	engine := newEngine(t, &recordingAnalyzer{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnose", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model":"grok-2-vision-1212"`)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, image.NewLoader(image.Options{}), "", nil)
	assert.Error(t, err)
	_, err = NewService(&recordingAnalyzer{}, nil, "", nil)
	assert.Error(t, err)
}
