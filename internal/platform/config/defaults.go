package config

// DefaultConfig returns the built-in configuration. It matches the hosted xAI vision setup.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "plant-detector.log",
		},
		Vision: VisionConfig{
			Type:      "openai",
			ModelName: "grok-2-vision-1212",
			BaseURL:   "https://api.x.ai/v1",
			MaxTokens: 2000,
		},
		Diagnosis: DiagnosisConfig{
			ImageMIMEType:    "image/jpeg",
			StrictValidation: false,
		},
		MCP: MCPConfig{
			Name:    "Plant Detector Pro",
			Version: "1.0.0",
		},
		Transport: TransportConfig{
			Type: TransportStdio,
			HTTP: HTTPConfig{
				IP:       "0.0.0.0",
				Port:     8080,
				Endpoint: "/mcp",
				Auth: AuthConfig{
					Enabled:  false,
					TokenTTL: "24h",
				},
			},
		},
	}
}
