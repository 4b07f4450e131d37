package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rhuss/aython/pkg/auth"
	"github.com/rhuss/aython/pkg/auth/apikey"
	"github.com/rhuss/aython/pkg/auth/jwt"
	"github.com/rhuss/aython/pkg/auth/noop"
	"github.com/rhuss/aython/pkg/config"
	"github.com/rhuss/aython/pkg/engine"
	"github.com/rhuss/aython/pkg/provider"
	"github.com/rhuss/aython/pkg/provider/factory"
	"github.com/rhuss/aython/pkg/sandbox"
	"github.com/rhuss/aython/pkg/sandbox/container"
	"github.com/rhuss/aython/pkg/sandbox/local"
	"github.com/rhuss/aython/pkg/sandbox/remote"
	"github.com/rhuss/aython/pkg/sandbox/remote/kubernetes"
	"github.com/rhuss/aython/pkg/storage"
	"github.com/rhuss/aython/pkg/storage/memory"
	"github.com/rhuss/aython/pkg/storage/postgres"
	"github.com/rhuss/aython/pkg/validate"
)

// ProviderFactoryFromConfig returns a factory that builds the configured
// backend for any model.
func ProviderFactoryFromConfig(cfg config.ProviderConfig) ProviderFactory {
	return func(ctx context.Context, model string) (provider.Provider, error) {
		return factory.New(ctx, factory.Config{
			Backend:          cfg.Backend,
			Model:            model,
			APIKey:           cfg.APIKey,
			BaseURL:          cfg.BaseURL,
			Timeout:          cfg.Timeout,
			MaxRetries:       cfg.MaxRetries,
			ModelMapping:     cfg.ModelMapping,
			StructuredOutput: cfg.StructuredOutput,
		})
	}
}

// NewValidator builds the configured syntax validator.
func NewValidator(cfg config.ValidatorConfig) (validate.Validator, error) {
	return validate.New(cfg.Type, validate.WithPython(cfg.Python))
}

// NewSandbox builds the configured sandbox. The returned closer releases
// engine connections and is never nil.
func NewSandbox(cfg config.SandboxConfig) (sandbox.Executor, io.Closer, error) {
	switch cfg.Type {
	case "", "local":
		opts := []local.Option{local.WithMaxOutput(cfg.MaxOutput)}
		if cfg.Local.Python != "" {
			opts = append(opts, local.WithPython(cfg.Local.Python))
		}
		if cfg.Local.TempDir != "" {
			opts = append(opts, local.WithTempDir(cfg.Local.TempDir))
		}
		return local.New(opts...), nopCloser{}, nil

	case "container":
		sb, err := container.New(container.Config{
			BaseImage:    cfg.Container.BaseImage,
			Repo:         cfg.Container.Repo,
			BuildTimeout: cfg.Container.BuildTimeout,
			KeepImages:   cfg.Container.KeepImages,
			MaxOutput:    cfg.MaxOutput,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating container sandbox: %w", err)
		}
		return sb, sb, nil

	case "remote":
		sb, err := remote.New(remote.Config{URL: cfg.Remote.URL, RetryMax: cfg.Remote.RetryMax})
		if err != nil {
			return nil, nil, fmt.Errorf("creating remote sandbox: %w", err)
		}
		return sb, nopCloser{}, nil

	case "kubernetes":
		claims, err := kubernetes.NewFromKubeconfig(kubernetes.Config{
			Template:     cfg.Kubernetes.Template,
			Namespace:    cfg.Kubernetes.Namespace,
			ReadyTimeout: cfg.Kubernetes.ReadyTimeout,
			Port:         cfg.Kubernetes.Port,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating kubernetes sandbox: %w", err)
		}
		sb, err := remote.New(remote.Config{Acquirer: claims, RetryMax: cfg.Remote.RetryMax})
		if err != nil {
			return nil, nil, err
		}
		return sb, nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown sandbox type %q", cfg.Type)
	}
}

// NewHistory builds the configured history store. It returns nil for
// storage type "none".
func NewHistory(ctx context.Context, cfg config.StorageConfig) (storage.HistoryStore, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "", "memory":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres history: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// NewAuth builds the authenticator chain and rate limiter. The limiter is
// nil when no rate is configured.
func NewAuth(cfg config.AuthConfig) (*auth.Chain, auth.RateLimiter, error) {
	chain := &auth.Chain{Default: auth.No}
	switch cfg.Type {
	case "", "none":
		chain.Authenticators = []auth.Authenticator{noop.Authenticator{}}
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for i, k := range cfg.APIKeys {
			if k.Key == "" {
				return nil, nil, fmt.Errorf("auth.api_keys[%d]: empty key", i)
			}
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if id.Subject == "" {
				id.Subject = fmt.Sprintf("key-%d", i)
			}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			keys = append(keys, apikey.Key{Secret: k.Key, Identity: id})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(keys)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			UserClaim:   cfg.JWT.UserClaim,
			TenantClaim: cfg.JWT.TenantClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		})}
	default:
		return nil, nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.DefaultRPM > 0 || len(cfg.RateLimit.Tiers) > 0 {
		limiter = auth.NewLimiter(cfg.RateLimit.DefaultRPM, cfg.RateLimit.Tiers)
	}
	return chain, limiter, nil
}

// Components are the parts FromConfig assembles. Close releases all of
// them.
type Components struct {
	Service *Service
	Sandbox sandbox.Executor
	History storage.HistoryStore

	closers []io.Closer
}

// Close shuts the service, the sandbox and the history store down.
func (c *Components) Close() error {
	var errs []error
	if c.Service != nil {
		errs = append(errs, c.Service.Close())
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	return errors.Join(errs...)
}

// FromConfig builds a Service and its dependencies from cfg.
func FromConfig(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{}

	v, err := NewValidator(cfg.Validator)
	if err != nil {
		return nil, err
	}

	sb, closer, err := NewSandbox(cfg.Sandbox)
	if err != nil {
		return nil, err
	}
	c.Sandbox = sb
	c.closers = append(c.closers, closer)

	history, err := NewHistory(ctx, cfg.Storage)
	if err != nil {
		c.Close()
		return nil, err
	}
	if history != nil {
		c.History = history
		c.closers = append(c.closers, history)
	}

	svc, err := New(Options{
		NewProvider:  ProviderFactoryFromConfig(cfg.Provider),
		Sandbox:      sb,
		Validator:    v,
		History:      history,
		DefaultModel: cfg.Provider.Model,
		Engine: engine.Config{
			Retries:            cfg.Engine.Retries,
			ValidationFeedback: cfg.Engine.ValidationFeedback,
			System:             cfg.Engine.SystemPrompt,
			Temperature:        cfg.Engine.Temperature,
			MaxTokens:          cfg.Engine.MaxTokens,
		},
		ExecutionTimeout: cfg.Sandbox.Timeout,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Service = svc

	slog.Info("service configured",
		"sandbox", sb.Name(),
		"validator", v.Name(),
		"storage", cfg.Storage.Type,
		"model", cfg.Provider.Model,
	)
	return c, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
