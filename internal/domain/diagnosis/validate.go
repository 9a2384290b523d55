package diagnosis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Validate checks a parsed reply against the result schema and returns every
// violation found. An empty slice means the object is a valid DiagnosticResult.
func Validate(raw json.RawMessage) []string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return []string{fmt.Sprintf("not a JSON object: %v", err)}
	}

	var violations []string
	for _, key := range ResultKeys {
		if _, ok := fields[key]; !ok {
			violations = append(violations, fmt.Sprintf("missing key %q", key))
		}
	}
	var extra []string
	for key := range fields {
		if !slices.Contains(ResultKeys, key) {
			extra = append(extra, key)
		}
	}
	slices.Sort(extra)
	for _, key := range extra {
		violations = append(violations, fmt.Sprintf("unexpected key %q", key))
	}

	checkEnum := func(key string, allowed []string) {
		value, ok := fields[key]
		if !ok {
			return
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			violations = append(violations, fmt.Sprintf("%s must be a string", key))
			return
		}
		if !slices.Contains(allowed, s) {
			violations = append(violations, fmt.Sprintf("%s %q not in [%s]", key, s, strings.Join(allowed, ", ")))
		}
	}
	checkEnum(KeyHealthStatus, HealthStatuses)
	checkEnum(KeyFungalStatus, FungalStatuses)
	checkEnum(KeyPlantPart, PlantParts)

	if value, ok := fields[KeyDiseaseDetected]; ok {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			violations = append(violations, fmt.Sprintf("%s must be a string", KeyDiseaseDetected))
		} else if strings.TrimSpace(s) == "" {
			violations = append(violations, fmt.Sprintf("%s is empty", KeyDiseaseDetected))
		}
	}

	if value, ok := fields[KeyRecommendations]; ok {
		violations = append(violations, validateRecommendations(value)...)
	}

	if value, ok := fields[KeyConfidenceScore]; ok {
		var score float64
		if isNull(value) || json.Unmarshal(value, &score) != nil {
			violations = append(violations, fmt.Sprintf("%s must be a number", KeyConfidenceScore))
		} else if score < 0 || score > 1 {
			violations = append(violations, fmt.Sprintf("%s %v outside [0, 1]", KeyConfidenceScore, score))
		}
	}

	return violations
}

func validateRecommendations(value json.RawMessage) []string {
	var recs []string
	if isNull(value) || json.Unmarshal(value, &recs) != nil {
		return []string{fmt.Sprintf("%s must be an array of strings", KeyRecommendations)}
	}

	var violations []string
	if len(recs) < MinRecommendations || len(recs) > MaxRecommendations {
		violations = append(violations, fmt.Sprintf("%s has %d items, want %d to %d",
			KeyRecommendations, len(recs), MinRecommendations, MaxRecommendations))
	}
	for i, r := range recs {
		if strings.TrimSpace(r) == "" {
			violations = append(violations, fmt.Sprintf("%s[%d] is empty", KeyRecommendations, i))
		}
	}
	return violations
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}
