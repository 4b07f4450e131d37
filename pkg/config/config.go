// Package config loads aython's configuration.
//
// Sources are layered, later ones winning:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (AYTHON_ prefix, plus AGENT_PORT and MODEL)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for aython.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provider      ProviderConfig      `yaml:"provider"`
	Engine        EngineConfig        `yaml:"engine"`
	Validator     ValidatorConfig     `yaml:"validator"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	MCP           MCPConfig           `yaml:"mcp"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 4000
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 10m
}

// ProviderConfig selects the generation backend.
type ProviderConfig struct {
	Backend    string        `yaml:"backend"`      // auto, openai, anthropic, gemini, openai-compatible
	Model      string        `yaml:"model"`        // default: gpt-4o-mini
	APIKey     string        `yaml:"api_key"`      // empty uses the SDK's env var
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	BaseURL    string        `yaml:"base_url"`     // required for openai-compatible
	Timeout    time.Duration `yaml:"timeout"`      // default: 120s
	MaxRetries int           `yaml:"max_retries"`  // SDK-level retries, default: 2

	// ModelMapping and StructuredOutput apply to openai-compatible only.
	ModelMapping     map[string]string `yaml:"model_mapping"`
	StructuredOutput bool              `yaml:"structured_output"`
}

// EngineConfig tunes the generation loop.
type EngineConfig struct {
	Retries            int      `yaml:"retries"` // default: 3
	ValidationFeedback bool     `yaml:"validation_feedback"`
	SystemPrompt       string   `yaml:"system_prompt"` // empty uses the built-in prompt
	Temperature        *float64 `yaml:"temperature"`
	MaxTokens          *int     `yaml:"max_tokens"`
}

// ValidatorConfig selects the syntax validator.
type ValidatorConfig struct {
	Type   string `yaml:"type"`   // auto, python or treesitter; default: auto (python when found)
	Python string `yaml:"python"` // interpreter for type python, default: python3
}

// SandboxConfig selects and configures the execution sandbox.
type SandboxConfig struct {
	Type       string                  `yaml:"type"`       // local, container, remote, kubernetes; default: local
	Timeout    time.Duration           `yaml:"timeout"`    // default: 10s
	MaxOutput  int                     `yaml:"max_output"` // bytes per stream, default: 1 MiB
	Local      LocalSandboxConfig      `yaml:"local"`
	Container  ContainerSandboxConfig  `yaml:"container"`
	Remote     RemoteSandboxConfig     `yaml:"remote"`
	Kubernetes KubernetesSandboxConfig `yaml:"kubernetes"`
}

// LocalSandboxConfig configures subprocess execution.
type LocalSandboxConfig struct {
	Python  string `yaml:"python"` // default: python3
	TempDir string `yaml:"temp_dir"`
}

// ContainerSandboxConfig configures Docker-backed execution.
type ContainerSandboxConfig struct {
	BaseImage    string        `yaml:"base_image"` // default: python:3.11-slim
	Repo         string        `yaml:"repo"`       // default: python-script-runner
	BuildTimeout time.Duration `yaml:"build_timeout"`
	KeepImages   bool          `yaml:"keep_images"`
}

// RemoteSandboxConfig points at a cmd/sandbox-server instance.
type RemoteSandboxConfig struct {
	URL      string `yaml:"url"`
	RetryMax int    `yaml:"retry_max"` // default: 3
}

// KubernetesSandboxConfig claims a sandbox server per run.
type KubernetesSandboxConfig struct {
	Template     string        `yaml:"template"`
	Namespace    string        `yaml:"namespace"`     // default: default
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // default: 30s
	Port         int           `yaml:"port"`          // default: 8080
}

// StorageConfig holds run history settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // none, memory or postgres; default: memory
	MaxSize  int            `yaml:"max_size"` // memory store bound, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`  // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"` // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds authentication settings for the JSON-RPC and MCP surfaces.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // none, apikey or jwt; default: none
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // entries for type apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig configures bearer token validation against a JWKS endpoint.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig limits requests per caller and service tier.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"` // 0 disables limiting
	Tiers      map[string]int `yaml:"tiers"`       // tier name to requests per minute
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// TracingConfig holds OTLP trace export settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"` // host:port of the OTLP/HTTP collector
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"` // default: aython
	SampleRatio float64 `yaml:"sample_ratio"` // default: 1
}

// MCPConfig controls the MCP tool endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: "/mcp"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         4000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Provider: ProviderConfig{
			Backend:    "auto",
			Model:      "gpt-4o-mini",
			Timeout:    120 * time.Second,
			MaxRetries: 2,
		},
		Engine: EngineConfig{
			Retries: 3,
		},
		Validator: ValidatorConfig{
			Type:   "auto",
			Python: "python3",
		},
		Sandbox: SandboxConfig{
			Type:      "local",
			Timeout:   10 * time.Second,
			MaxOutput: 1 << 20,
			Local:     LocalSandboxConfig{Python: "python3"},
			Container: ContainerSandboxConfig{
				BaseImage:    "python:3.11-slim",
				Repo:         "python-script-runner",
				BuildTimeout: 5 * time.Minute,
			},
			Remote: RemoteSandboxConfig{RetryMax: 3},
			Kubernetes: KubernetesSandboxConfig{
				Namespace:    "default",
				ReadyTimeout: 30 * time.Second,
				Port:         8080,
			},
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				ServiceName: "aython",
				SampleRatio: 1,
			},
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
	}
}
