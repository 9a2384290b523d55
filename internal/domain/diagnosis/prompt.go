package diagnosis

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
)

//go:embed prompt.tmpl
var defaultPromptTemplate string

// DefaultExampleImageURL is the sample image referenced by the worked example.
const DefaultExampleImageURL = "https://content.ces.ncsu.edu/media/images/IMG_1301.JPG"

// PromptData feeds the prompt template.
type PromptData struct {
	Keys                []string
	HealthStatuses      []string
	FungalStatuses      []string
	PlantParts          []string
	NoDisease           string
	MinRecommendations  int
	MaxRecommendations  int
	ConfidenceThreshold float64
	ExampleImageURL     string
}

// DefaultPromptData returns the values used in production.
func DefaultPromptData() PromptData {
	return PromptData{
		Keys:                ResultKeys,
		HealthStatuses:      HealthStatuses,
		FungalStatuses:      FungalStatuses,
		PlantParts:          PlantParts,
		NoDisease:           NoDisease,
		MinRecommendations:  MinRecommendations,
		MaxRecommendations:  MaxRecommendations,
		ConfidenceThreshold: ConfidenceThreshold,
		ExampleImageURL:     DefaultExampleImageURL,
	}
}

var promptFuncs = template.FuncMap{
	// quoteList renders a, b, c as "a", "b", or "c".
	"quoteList": func(values []string) string {
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = `"` + v + `"`
		}
		return joinOr(quoted)
	},
	"codeList": func(values []string) string {
		coded := make([]string, len(values))
		for i, v := range values {
			coded[i] = "`" + v + "`"
		}
		return strings.Join(coded, ", ")
	},
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
}

// RenderPrompt executes a prompt template. Unknown fields are an error.
func RenderPrompt(text string, data PromptData) (string, error) {
	tmpl, err := template.New("prompt").Funcs(promptFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// LoadPrompt renders the embedded template, or overrideFile when it is set.
func LoadPrompt(overrideFile string) (string, error) {
	text := defaultPromptTemplate
	if path := strings.TrimSpace(overrideFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		text = string(raw)
	}
	return RenderPrompt(text, DefaultPromptData())
}

// DefaultPrompt renders the embedded template with the default data.
func DefaultPrompt() string {
	prompt, err := RenderPrompt(defaultPromptTemplate, DefaultPromptData())
	if err != nil {
		panic(err)
	}
	return prompt
}
