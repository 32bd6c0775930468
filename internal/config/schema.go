package config

// Config holds pagelift configuration.
// Loaded from ./config.yaml or ~/.pagelift/config.yaml.
type Config struct {
	Mistral MistralCfg `mapstructure:"mistral" yaml:"mistral"`
	Sandbox SandboxCfg `mapstructure:"sandbox" yaml:"sandbox"`
	Server  ServerCfg  `mapstructure:"server" yaml:"server"`
}

// MistralCfg configures the Mistral OCR provider.
type MistralCfg struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// MaxRetries enables retrying transient remote failures. 0 keeps the
	// single-attempt default; each retry re-uploads the file.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// SandboxCfg configures the output write sandbox.
type SandboxCfg struct {
	// AllowedDir is the only directory tree OCR artifacts may be written
	// into. Empty selects ~/.pagelift/outputs.
	AllowedDir string `mapstructure:"allowed_dir" yaml:"allowed_dir"`
}

// ServerCfg holds HTTP server settings.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mistral: MistralCfg{
			APIKey:         "${MISTRAL_API_KEY}",
			BaseURL:        "https://api.mistral.ai/v1",
			TimeoutSeconds: 120,
			MaxRetries:     0,
		},
		Sandbox: SandboxCfg{
			AllowedDir: "",
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
	}
}
