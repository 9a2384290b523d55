package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"plant-detector-go/internal/domain/eventbus"
	"plant-detector-go/internal/domain/image"
	"plant-detector-go/internal/domain/vision"
	platformerrors "plant-detector-go/internal/platform/errors"
	"plant-detector-go/internal/platform/observability"
	"plant-detector-go/internal/utils"
)

// DefaultMaxTokens bounds the generated reply.
const DefaultMaxTokens = 2000

// Options configures a Service.
type Options struct {
	// Prompt is the rendered prompt; empty means DefaultPrompt().
	Prompt           string
	MaxTokens        int
	StrictValidation bool
	Events           eventbus.Publisher
	Logger           *utils.Logger
}

// Service runs one analysis per call. It keeps no per-call state and is safe
// for concurrent use.
type Service struct {
	loader    *image.Loader
	client    vision.Client
	prompt    string
	maxTokens int
	strict    bool
	events    eventbus.Publisher
	logger    *utils.Logger
	now       func() time.Time
}

// NewService wires the loader and vision client together.
func NewService(loader *image.Loader, client vision.Client, opts Options) (*Service, error) {
	if loader == nil {
		return nil, platformerrors.New(platformerrors.KindDomain, "diagnosis.new", "image loader is required")
	}
	if client == nil {
		return nil, platformerrors.New(platformerrors.KindDomain, "diagnosis.new", "vision client is required")
	}

	prompt := opts.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt()
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	events := opts.Events
	if events == nil {
		events = eventbus.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.DefaultLogger
	}

	return &Service{
		loader:    loader,
		client:    client,
		prompt:    prompt,
		maxTokens: maxTokens,
		strict:    opts.StrictValidation,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Prompt returns the rendered prompt sent with every request.
func (s *Service) Prompt() string {
	return s.prompt
}

// AnalyzePath loads the image at path and analyses it. It never returns an
// error: every failure, including a panic below it, becomes an error outcome.
func (s *Service) AnalyzePath(ctx context.Context, path string) (outcome Outcome) {
	requestID := uuid.NewString()
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorTag("Diagnosis", "analysis %s panicked: %v", requestID, r)
			outcome = apiErrorOutcome(fmt.Errorf("%v", r))
		}
		s.finish(ctx, requestID, path, start, outcome)
	}()

	s.logger.InfoTag("Diagnosis", "Analyzing image: %s", path)
	s.events.PublishAsync(eventbus.TopicAnalysisStarted, eventbus.AnalysisEvent{
		RequestID: requestID,
		ImagePath: path,
		Model:     s.client.Model(),
		At:        start,
	})

	loaded, err := s.loader.Load(path)
	if err != nil {
		s.logger.WarnTag("Diagnosis", "analysis %s: %v",
			requestID, platformerrors.Wrap(platformerrors.KindInput, "diagnosis.load", "load image", err))
		return apiErrorOutcome(err)
	}
	if !loaded.Found() {
		s.logger.WarnTag("Diagnosis", "analysis %s: image not found: %s", requestID, path)
		return notFoundOutcome()
	}

	return s.analyze(ctx, requestID, loaded.Image)
}

// Analyze submits an already encoded image.
func (s *Service) Analyze(ctx context.Context, img image.EncodedImage) (outcome Outcome) {
	requestID := uuid.NewString()
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorTag("Diagnosis", "analysis %s panicked: %v", requestID, r)
			outcome = apiErrorOutcome(fmt.Errorf("%v", r))
		}
		s.finish(ctx, requestID, img.Path, start, outcome)
	}()

	s.events.PublishAsync(eventbus.TopicAnalysisStarted, eventbus.AnalysisEvent{
		RequestID: requestID,
		ImagePath: img.Path,
		Model:     s.client.Model(),
		At:        start,
	})
	return s.analyze(ctx, requestID, img)
}

func (s *Service) analyze(ctx context.Context, requestID string, img image.EncodedImage) Outcome {
	reply, err := s.client.Complete(ctx, vision.Request{
		Prompt:    s.prompt,
		ImageURL:  img.DataURI(),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.InfoTag("Diagnosis", "analysis %s cancelled by caller", requestID)
		} else {
			s.logger.ErrorTag("Diagnosis", "analysis %s: %v",
				requestID, platformerrors.Wrap(platformerrors.KindVision, "diagnosis.complete", "vision call failed", err))
		}
		return apiErrorOutcome(err)
	}

	outcome := Normalize(reply)
	if outcome.Kind != OutcomeResult {
		s.logger.WarnTag("Diagnosis", "analysis %s: %s (reply length %d)", requestID, outcome.Error.Error, len(reply))
		return outcome
	}

	if s.strict {
		if violations := Validate(outcome.Result); len(violations) > 0 {
			s.logger.WarnTag("Diagnosis", "analysis %s: %d schema violations", requestID, len(violations))
			schema := rawErrorOutcome(OutcomeSchemaError, MsgSchemaViolation, reply)
			schema.Error.Violations = violations
			return schema
		}
	}
	return outcome
}

func (s *Service) finish(ctx context.Context, requestID, path string, start time.Time, outcome Outcome) {
	elapsed := s.now().Sub(start)
	event := eventbus.AnalysisEvent{
		RequestID: requestID,
		ImagePath: path,
		Model:     s.client.Model(),
		Outcome:   outcome.Kind.String(),
		Duration:  elapsed,
		At:        s.now(),
	}
	topic := eventbus.TopicAnalysisCompleted
	if outcome.Kind == OutcomeResult {
		if res, err := outcome.Decode(); err == nil {
			event.HealthStatus = res.HealthStatus
			event.Confidence = res.ConfidenceScore
		} else {
			s.logger.DebugTag("Diagnosis", "analysis %s: result summary unavailable: %v", requestID, err)
		}
	}
	if outcome.IsError() {
		topic = eventbus.TopicAnalysisFailed
		if outcome.Error != nil {
			event.Error = outcome.Error.Error
		}
	}
	s.events.PublishAsync(topic, event)

	labels := map[string]string{"outcome": outcome.Kind.String(), "model": s.client.Model()}
	observability.RecordMetric(ctx, "diagnosis.analyses", 1, labels)
	observability.RecordMetric(ctx, "diagnosis.duration_ms", float64(elapsed.Milliseconds()), labels)
}
