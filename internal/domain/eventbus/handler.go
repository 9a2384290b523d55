package eventbus

import (
	"fmt"

	"plant-detector-go/internal/utils"
)

// LoggingHandler writes one log line per analysis event.
type LoggingHandler struct {
	logger *utils.Logger
}

func NewLoggingHandler(logger *utils.Logger) *LoggingHandler {
	if logger == nil {
		logger = utils.DefaultLogger
	}
	return &LoggingHandler{logger: logger}
}

// Handle dispatches on topic.
func (h *LoggingHandler) Handle(topic string, event AnalysisEvent) {
	switch topic {
	case TopicAnalysisStarted:
		h.logger.InfoTag("Events", "analysis %s started: image=%s model=%s",
			event.RequestID, event.ImagePath, event.Model)
	case TopicAnalysisCompleted:
		if event.HealthStatus != "" {
			h.logger.InfoTag("Events", "analysis %s completed: outcome=%s health=%s confidence=%.2f duration=%s",
				event.RequestID, event.Outcome, event.HealthStatus, event.Confidence, event.Duration)
			return
		}
		h.logger.InfoTag("Events", "analysis %s completed: outcome=%s duration=%s",
			event.RequestID, event.Outcome, event.Duration)
	case TopicAnalysisFailed:
		h.logger.WarnTag("Events", "analysis %s failed: outcome=%s error=%q duration=%s",
			event.RequestID, event.Outcome, event.Error, event.Duration)
	default:
		h.logger.DebugTag("Events", "unhandled topic %s", topic)
	}
}

// SetupEventHandlers subscribes the logging handler to every analysis topic.
func SetupEventHandlers(bus Subscriber, logger *utils.Logger) error {
	handler := NewLoggingHandler(logger)
	for _, topic := range Topics {
		topic := topic
		if err := bus.Subscribe(topic, func(event AnalysisEvent) {
			handler.Handle(topic, event)
		}); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}
