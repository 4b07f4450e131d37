package config

import (
	"errors"
	"fmt"
	"slices"
)

func oneOf(field, got string, allowed ...string) error {
	if slices.Contains(allowed, got) {
		return nil
	}
	return fmt.Errorf("%s must be one of %q, got %q", field, allowed, got)
}

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each prefixed with its field path.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add(fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	add(oneOf("provider.backend", c.Provider.Backend, "", "auto", "openai", "anthropic", "gemini", "openai-compatible"))
	if c.Provider.Model == "" {
		add(errors.New("provider.model is required"))
	}
	if c.Provider.Backend == "openai-compatible" && c.Provider.BaseURL == "" {
		add(errors.New("provider.base_url is required when provider.backend is \"openai-compatible\""))
	}

	if c.Engine.Retries < 1 {
		add(fmt.Errorf("engine.retries must be >= 1, got %d", c.Engine.Retries))
	}
	if t := c.Engine.Temperature; t != nil && (*t < 0 || *t > 2) {
		add(fmt.Errorf("engine.temperature must be in [0, 2], got %g", *t))
	}

	add(oneOf("validator.type", c.Validator.Type, "auto", "python", "treesitter"))

	add(oneOf("sandbox.type", c.Sandbox.Type, "local", "container", "remote", "kubernetes"))
	if c.Sandbox.Timeout <= 0 {
		add(fmt.Errorf("sandbox.timeout must be > 0, got %s", c.Sandbox.Timeout))
	}
	switch c.Sandbox.Type {
	case "remote":
		if c.Sandbox.Remote.URL == "" {
			add(errors.New("sandbox.remote.url is required when sandbox.type is \"remote\""))
		}
	case "kubernetes":
		if c.Sandbox.Kubernetes.Template == "" {
			add(errors.New("sandbox.kubernetes.template is required when sandbox.type is \"kubernetes\""))
		}
	}

	add(oneOf("storage.type", c.Storage.Type, "none", "memory", "postgres"))
	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
		add(errors.New("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
	}

	add(oneOf("auth.type", c.Auth.Type, "none", "apikey", "jwt"))
	switch c.Auth.Type {
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			add(errors.New("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			add(errors.New("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	}

	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		add(errors.New("observability.tracing.endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}
