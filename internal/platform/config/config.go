package config

type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Vision    VisionConfig    `yaml:"vision" mapstructure:"vision"`
	Diagnosis DiagnosisConfig `yaml:"diagnosis" mapstructure:"diagnosis"`
	MCP       MCPConfig       `yaml:"mcp" mapstructure:"mcp"`
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`

	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// VisionConfig describes the OpenAI-compatible multimodal endpoint.
type VisionConfig struct {
	Type      string `yaml:"type" mapstructure:"type"`
	ModelName string `yaml:"model_name" mapstructure:"model_name"`
	BaseURL   string `yaml:"url" mapstructure:"url"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	// RequestTimeout is a Go duration string; empty means the HTTP transport default.
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout"`
}

type DiagnosisConfig struct {
	// PromptFile overrides the embedded prompt template when set.
	PromptFile       string `yaml:"prompt_file" mapstructure:"prompt_file"`
	ImageMIMEType    string `yaml:"image_mime_type" mapstructure:"image_mime_type"`
	StrictValidation bool   `yaml:"strict_validation" mapstructure:"strict_validation"`
}

type MCPConfig struct {
	Name         string `yaml:"name" mapstructure:"name"`
	Version      string `yaml:"version" mapstructure:"version"`
	Instructions string `yaml:"instructions" mapstructure:"instructions"`
}

// TransportConfig selects how the MCP server is exposed.
type TransportConfig struct {
	Type string     `yaml:"type" mapstructure:"type"`
	HTTP HTTPConfig `yaml:"http" mapstructure:"http"`
}

type HTTPConfig struct {
	IP       string     `yaml:"ip" mapstructure:"ip"`
	Port     int        `yaml:"port" mapstructure:"port"`
	Endpoint string     `yaml:"endpoint" mapstructure:"endpoint"`
	Auth     AuthConfig `yaml:"auth" mapstructure:"auth"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	// TokenTTL is a Go duration string used when issuing tokens.
	TokenTTL string `yaml:"token_ttl" mapstructure:"token_ttl"`
}

// ObservabilityConfig toggles slog-backed spans and metrics.
type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)
