// Package diagnosis turns a plant image into a diagnostic verdict via one vision model call.
package diagnosis

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Result keys, in the order the model is asked to emit them.
const (
	KeyHealthStatus    = "health_status"
	KeyFungalStatus    = "fungal_status"
	KeyPlantPart       = "plant_part"
	KeyDiseaseDetected = "disease_detected"
	KeyRecommendations = "recommendations"
	KeyConfidenceScore = "confidence_score"
)

// ResultKeys lists every key of a DiagnosticResult.
var ResultKeys = []string{
	KeyHealthStatus,
	KeyFungalStatus,
	KeyPlantPart,
	KeyDiseaseDetected,
	KeyRecommendations,
	KeyConfidenceScore,
}

// Allowed enumeration values.
var (
	HealthStatuses = []string{"healthy", "unhealthy", "uncertain"}
	FungalStatuses = []string{"present", "absent", "uncertain"}
	PlantParts     = []string{"fruit", "leaves", "stem", "roots", "flowers", "whole_plant"}
)

const (
	// NoDisease is what the model reports when it cannot name a disease.
	NoDisease = "None"

	MinRecommendations  = 2
	MaxRecommendations  = 4
	ConfidenceThreshold = 0.7
)

// Error messages placed in ErrorPayload.Error.
const (
	MsgImageNotFound   = "Image file not found. Please check the path."
	MsgNotJSON         = "Response not in expected JSON format"
	MsgParseFailed     = "Failed to parse JSON response"
	MsgSchemaViolation = "Response failed schema validation"
	APIErrorPrefix     = "API Error: "
	InvalidInputPrefix = "Invalid input: "
)

// Checklist returns the remediation hints attached to transport and credential failures.
func Checklist() []string {
	return []string{
		"Verify XAI_API_KEY in .env file",
		"Check xAI account has credits",
		"Confirm image path is correct",
	}
}

// DiagnosticResult is the typed view of a successful reply.
type DiagnosticResult struct {
	HealthStatus    string   `json:"health_status"`
	FungalStatus    string   `json:"fungal_status"`
	PlantPart       string   `json:"plant_part"`
	DiseaseDetected string   `json:"disease_detected"`
	Recommendations []string `json:"recommendations"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// ErrorPayload is returned on the same channel as a result. Consumers check for "error" first.
type ErrorPayload struct {
	Error string `json:"error"`
	// RawResponse is a pointer so an empty model reply is still reported.
	RawResponse *string  `json:"raw_response,omitempty"`
	Checklist   []string `json:"checklist,omitempty"`
	Violations  []string `json:"violations,omitempty"`
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeResult OutcomeKind = iota
	OutcomeNotFound
	OutcomeNotJSON
	OutcomeParseError
	OutcomeSchemaError
	OutcomeAPIError
	OutcomeInvalidInput
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResult:
		return "result"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeNotJSON:
		return "not_json"
	case OutcomeParseError:
		return "parse_error"
	case OutcomeSchemaError:
		return "schema_error"
	case OutcomeAPIError:
		return "api_error"
	case OutcomeInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Outcome is exactly one of a result or an error payload.
type Outcome struct {
	Kind OutcomeKind
	// Result holds the pretty-printed JSON object when Kind is OutcomeResult.
	Result json.RawMessage
	Error  *ErrorPayload
}

// IsError reports whether the outcome carries an ErrorPayload.
func (o Outcome) IsError() bool {
	return o.Kind != OutcomeResult
}

// JSON renders the outcome as the 2-space indented string returned to tool callers.
func (o Outcome) JSON() string {
	if o.Kind == OutcomeResult {
		return string(o.Result)
	}
	payload := o.Error
	if payload == nil {
		payload = &ErrorPayload{Error: o.Kind.String()}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		// every field is a string or string slice
		return `{"error": "` + o.Kind.String() + `"}`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Decode parses a successful outcome into its typed form. Missing keys stay zero.
func (o Outcome) Decode() (DiagnosticResult, error) {
	var res DiagnosticResult
	if o.Kind != OutcomeResult {
		return res, &OutcomeError{Outcome: o}
	}
	err := json.Unmarshal(o.Result, &res)
	return res, err
}

// OutcomeError adapts an error outcome to the error interface.
type OutcomeError struct {
	Outcome Outcome
}

func (e *OutcomeError) Error() string {
	if e.Outcome.Error != nil {
		return e.Outcome.Error.Error
	}
	return e.Outcome.Kind.String()
}

func resultOutcome(pretty []byte) Outcome {
	return Outcome{Kind: OutcomeResult, Result: json.RawMessage(pretty)}
}

func rawErrorOutcome(kind OutcomeKind, message, raw string) Outcome {
	return Outcome{Kind: kind, Error: &ErrorPayload{Error: message, RawResponse: &raw}}
}

func notFoundOutcome() Outcome {
	return Outcome{Kind: OutcomeNotFound, Error: &ErrorPayload{Error: MsgImageNotFound}}
}

func apiErrorOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeAPIError, Error: &ErrorPayload{
		Error:     APIErrorPrefix + err.Error(),
		Checklist: Checklist(),
	}}
}

// InvalidInput reports a malformed tool call, such as a missing image_path.
func InvalidInput(err error) Outcome {
	return Outcome{Kind: OutcomeInvalidInput, Error: &ErrorPayload{Error: InvalidInputPrefix + err.Error()}}
}

// APIError reports a transport, credential or I/O failure with the remediation checklist.
func APIError(err error) Outcome {
	return apiErrorOutcome(err)
}
