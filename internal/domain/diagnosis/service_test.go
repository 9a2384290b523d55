package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-detector-go/internal/domain/eventbus"
	"plant-detector-go/internal/domain/image"
	"plant-detector-go/internal/domain/vision"
	testhelpers "plant-detector-go/internal/platform/testing"
)

type fakeVision struct {
	mu       sync.Mutex
	reply    string
	err      error
	panicMsg string
	requests []vision.Request
}

func (f *fakeVision) Complete(_ context.Context, req vision.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.reply, f.err
}

func (f *fakeVision) Model() string { return "fake-vision" }

func (f *fakeVision) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []eventbus.AnalysisEvent
}

func (r *recordingPublisher) PublishAsync(topic string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	if len(args) > 0 {
		if e, ok := args[0].(eventbus.AnalysisEvent); ok {
			r.events = append(r.events, e)
		}
	}
}

func writeImage(t *testing.T, data []byte) string {
	return testhelpers.WriteImage(t, "leaf.jpg", data)
}

func newTestService(t *testing.T, client vision.Client, opts Options) *Service {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testhelpers.SetupTestLogger(t)
	}
	svc, err := NewService(image.NewLoader(image.Options{Logger: opts.Logger}), client, opts)
	require.NoError(t, err)
	return svc
}

func TestService_AnalyzePathHappyPath(t *testing.T) {
	client := &fakeVision{reply: "Here you go:\n" + healthyReply + "\nThanks"}
	events := &recordingPublisher{}
	svc := newTestService(t, client, Options{Events: events})

	out := svc.AnalyzePath(context.Background(), writeImage(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}))

	require.Equal(t, OutcomeResult, out.Kind)
	assert.JSONEq(t, healthyReply, out.JSON())
	require.Equal(t, 1, client.calls())

	req := client.requests[0]
	assert.Equal(t, DefaultPrompt(), req.Prompt)
	assert.Equal(t, 2000, req.MaxTokens)
	assert.Equal(t, "data:image/jpeg;base64,/9j/4A==", req.ImageURL)

	assert.Equal(t, []string{eventbus.TopicAnalysisStarted, eventbus.TopicAnalysisCompleted}, events.topics)
	require.Len(t, events.events, 2)
	assert.Equal(t, events.events[0].RequestID, events.events[1].RequestID)
	assert.Equal(t, "result", events.events[1].Outcome)
	assert.Equal(t, "fake-vision", events.events[1].Model)
	assert.Equal(t, "healthy", events.events[1].HealthStatus)
	assert.InDelta(t, 0.93, events.events[1].Confidence, 1e-9)
}

func TestService_NotFoundMakesNoCall(t *testing.T) {
	client := &fakeVision{reply: healthyReply}
	events := &recordingPublisher{}
	svc := newTestService(t, client, Options{Events: events})

	out := svc.AnalyzePath(context.Background(), "/no/such/file.jpg")

	assert.Equal(t, OutcomeNotFound, out.Kind)
	assert.Equal(t, MsgImageNotFound, out.Error.Error)
	assert.Zero(t, client.calls())
	assert.Equal(t, []string{eventbus.TopicAnalysisStarted, eventbus.TopicAnalysisFailed}, events.topics)
	assert.Equal(t, "not_found", events.events[1].Outcome)
}

func TestService_TransportFailureReturnsChecklist(t *testing.T) {
	client := &fakeVision{err: errors.New("error, status code: 401, message: Incorrect API key provided")}
	svc := newTestService(t, client, Options{})

	out := svc.AnalyzePath(context.Background(), writeImage(t, []byte("jpeg")))

	require.Equal(t, OutcomeAPIError, out.Kind)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.JSON()), &payload))
	assert.Equal(t, "API Error: error, status code: 401, message: Incorrect API key provided", payload["error"])
	assert.Len(t, payload["checklist"], 3)
	for _, key := range ResultKeys {
		assert.NotContains(t, payload, key)
	}
}

func TestService_LoadErrorReturnsChecklist(t *testing.T) {
	client := &fakeVision{reply: healthyReply}
	svc := newTestService(t, client, Options{})

	out := svc.AnalyzePath(context.Background(), t.TempDir())

	assert.Equal(t, OutcomeAPIError, out.Kind)
	assert.True(t, strings.HasPrefix(out.Error.Error, APIErrorPrefix))
	assert.Equal(t, Checklist(), out.Error.Checklist)
	assert.Zero(t, client.calls())
}

func TestService_PanicBecomesAPIError(t *testing.T) {
	client := &fakeVision{panicMsg: "nil map"}
	svc := newTestService(t, client, Options{})

	var out Outcome
	assert.NotPanics(t, func() {
		out = svc.AnalyzePath(context.Background(), writeImage(t, []byte("jpeg")))
	})
	assert.Equal(t, OutcomeAPIError, out.Kind)
	assert.Equal(t, "API Error: nil map", out.Error.Error)
}

func TestService_MalformedReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		kind  OutcomeKind
		msg   string
	}{
		{"parse failure", `{"health_status": "healthy",}`, OutcomeParseError, MsgParseFailed},
		{"no json", "I could not analyse this image.", OutcomeNotJSON, MsgNotJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeVision{reply: tt.reply}
			out := newTestService(t, client, Options{}).AnalyzePath(context.Background(), writeImage(t, []byte("x")))

			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, tt.msg, out.Error.Error)
			assert.Equal(t, tt.reply, *out.Error.RawResponse)
			assert.Equal(t, 1, client.calls())
		})
	}
}

func TestService_PermissiveByDefault(t *testing.T) {
	reply := `{"health_status": "thriving", "confidence_score": 3.5}`
	client := &fakeVision{reply: reply}
	out := newTestService(t, client, Options{}).AnalyzePath(context.Background(), writeImage(t, []byte("x")))

	require.Equal(t, OutcomeResult, out.Kind)
	assert.Contains(t, out.JSON(), `"confidence_score": 3.5`)
}

func TestService_StrictValidation(t *testing.T) {
	reply := `{"health_status": "thriving", "confidence_score": 3.5}`
	client := &fakeVision{reply: reply}
	out := newTestService(t, client, Options{StrictValidation: true}).
		AnalyzePath(context.Background(), writeImage(t, []byte("x")))

	require.Equal(t, OutcomeSchemaError, out.Kind)
	assert.Equal(t, MsgSchemaViolation, out.Error.Error)
	assert.Equal(t, reply, *out.Error.RawResponse)
	assert.Contains(t, out.Error.Violations, `health_status "thriving" not in [healthy, unhealthy, uncertain]`)
	assert.Contains(t, out.Error.Violations, "confidence_score 3.5 outside [0, 1]")

	strictOK := newTestService(t, &fakeVision{reply: healthyReply}, Options{StrictValidation: true}).
		AnalyzePath(context.Background(), writeImage(t, []byte("x")))
	assert.Equal(t, OutcomeResult, strictOK.Kind)
}

func TestService_CustomPromptAndTokens(t *testing.T) {
	client := &fakeVision{reply: "{}"}
	svc := newTestService(t, client, Options{Prompt: "describe", MaxTokens: 128})

	out := svc.Analyze(context.Background(), image.EncodedImage{Base64: "QUJD", MIMEType: "image/png"})

	assert.Equal(t, "{}", out.JSON())
	assert.Equal(t, "describe", svc.Prompt())
	assert.Equal(t, vision.Request{Prompt: "describe", ImageURL: "data:image/png;base64,QUJD", MaxTokens: 128}, client.requests[0])
}

func TestService_ConcurrentCalls(t *testing.T) {
	client := &fakeVision{reply: healthyReply}
	svc := newTestService(t, client, Options{})
	path := writeImage(t, []byte("x"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, OutcomeResult, svc.AnalyzePath(context.Background(), path).Kind)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, client.calls())
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, &fakeVision{}, Options{})
	assert.Error(t, err)
	_, err = NewService(image.NewLoader(image.Options{}), nil, Options{})
	assert.Error(t, err)
}
