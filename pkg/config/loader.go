package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, an optional YAML file and
// the environment, then validates it.
//
// The file is configPath when given, otherwise AYTHON_CONFIG,
// ./config.yaml or /etc/aython/config.yaml, whichever exists first. A
// missing configPath is an error; a missing AYTHON_CONFIG file is skipped.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("AYTHON_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		slog.Warn("AYTHON_CONFIG file not found, ignoring", "path", envPath)
	}
	for _, path := range []string{"config.yaml", "/etc/aython/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile decodes path over cfg. Keys missing from the file keep
// their current values; unknown keys are an error.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envBinding maps one environment variable onto a config field.
type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

func str(set func(*Config, string)) func(*Config, string) error {
	return func(cfg *Config, v string) error { set(cfg, v); return nil }
}

func integer(set func(*Config, int)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		set(cfg, n)
		return nil
	}
}

func boolean(set func(*Config, bool)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", v)
		}
		set(cfg, b)
		return nil
	}
}

func duration(set func(*Config, time.Duration)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("not a duration: %q", v)
		}
		set(cfg, d)
		return nil
	}
}

// envBindings lists the supported variables in application order.
// AGENT_PORT and MODEL come first so the AYTHON_ names win when both are set.
var envBindings = []envBinding{
	{"AGENT_PORT", integer(func(c *Config, n int) { c.Server.Port = n })},
	{"MODEL", str(func(c *Config, v string) { c.Provider.Model = v })},

	{"AYTHON_PORT", integer(func(c *Config, n int) { c.Server.Port = n })},
	{"AYTHON_MODEL", str(func(c *Config, v string) { c.Provider.Model = v })},
	{"AYTHON_PROVIDER", str(func(c *Config, v string) { c.Provider.Backend = v })},
	{"AYTHON_BASE_URL", str(func(c *Config, v string) { c.Provider.BaseURL = v })},
	{"AYTHON_API_KEY", str(func(c *Config, v string) { c.Provider.APIKey = v })},
	{"AYTHON_STRUCTURED_OUTPUT", boolean(func(c *Config, b bool) { c.Provider.StructuredOutput = b })},

	{"AYTHON_RETRIES", integer(func(c *Config, n int) { c.Engine.Retries = n })},
	{"AYTHON_VALIDATION_FEEDBACK", boolean(func(c *Config, b bool) { c.Engine.ValidationFeedback = b })},
	{"AYTHON_VALIDATOR", str(func(c *Config, v string) { c.Validator.Type = v })},

	{"AYTHON_SANDBOX", str(func(c *Config, v string) { c.Sandbox.Type = v })},
	{"AYTHON_SANDBOX_TIMEOUT", duration(func(c *Config, d time.Duration) { c.Sandbox.Timeout = d })},
	{"AYTHON_SANDBOX_URL", str(func(c *Config, v string) { c.Sandbox.Remote.URL = v })},
	{"AYTHON_SANDBOX_TEMPLATE", str(func(c *Config, v string) { c.Sandbox.Kubernetes.Template = v })},
	{"AYTHON_PYTHON", str(func(c *Config, v string) {
		c.Sandbox.Local.Python = v
		c.Validator.Python = v
	})},

	{"AYTHON_STORAGE", str(func(c *Config, v string) { c.Storage.Type = v })},
	{"AYTHON_STORAGE_SIZE", integer(func(c *Config, n int) { c.Storage.MaxSize = n })},
	{"AYTHON_POSTGRES_DSN", str(func(c *Config, v string) { c.Storage.Postgres.DSN = v })},

	{"AYTHON_AUTH_TYPE", str(func(c *Config, v string) { c.Auth.Type = v })},
	{"AYTHON_API_KEYS", func(c *Config, v string) error {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("parsing API keys JSON: %w", err)
		}
		c.Auth.APIKeys = keys
		return nil
	}},

	{"AYTHON_MCP", boolean(func(c *Config, b bool) { c.MCP.Enabled = b })},
	{"AYTHON_TRACING_ENDPOINT", str(func(c *Config, v string) {
		c.Observability.Tracing.Endpoint = v
		c.Observability.Tracing.Enabled = true
	})},
}

// applyEnvOverrides applies every set variable in envBindings. Malformed
// values are reported with the variable name.
func applyEnvOverrides(cfg *Config) error {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}

// secretRef ties a _file field to the value it fills.
type secretRef struct {
	path   string
	file   string
	target *string
}

// resolveFileReferences fills a secret from its _file field when the
// secret itself is empty.
func resolveFileReferences(cfg *Config) error {
	refs := []secretRef{
		{"provider.api_key_file", cfg.Provider.APIKeyFile, &cfg.Provider.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, secretRef{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, r := range refs {
		if r.file == "" || *r.target != "" {
			continue
		}
		val, err := readSecretFile(r.file)
		if err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}
		*r.target = val
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
