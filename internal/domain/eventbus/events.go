package eventbus

import "time"

// Analysis lifecycle topics.
const (
	TopicAnalysisStarted   = "analysis:started"
	TopicAnalysisCompleted = "analysis:completed"
	TopicAnalysisFailed    = "analysis:failed"
)

// Topics lists every topic published by the diagnosis service.
var Topics = []string{
	TopicAnalysisStarted,
	TopicAnalysisCompleted,
	TopicAnalysisFailed,
}

// AnalysisEvent is the payload carried by all analysis topics.
type AnalysisEvent struct {
	RequestID string `json:"request_id"`
	ImagePath string `json:"image_path,omitempty"`
	Model     string `json:"model,omitempty"`
	// Outcome is the diagnosis outcome kind, empty on analysis:started.
	Outcome string `json:"outcome,omitempty"`
	// HealthStatus and Confidence are copied from a successful diagnosis.
	HealthStatus string        `json:"health_status,omitempty"`
	Confidence   float64       `json:"confidence,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	At           time.Time     `json:"at"`
}
