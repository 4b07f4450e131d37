// Package kubernetes acquires per-run sandbox servers from an agent-sandbox
// controller. Each acquisition creates a SandboxClaim against a
// SandboxTemplate that runs cmd/sandbox-server, waits for the bound
// Sandbox to report Ready and hands its service address to the remote
// sandbox client. Releasing deletes the claim.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/sandbox/remote"
)

// Config selects the template and namespace claims are created in.
type Config struct {
	Template  string
	Namespace string
	// ReadyTimeout bounds the wait for a claimed Sandbox (default 30s).
	ReadyTimeout time.Duration
	// Port is the sandbox server port inside the pod (default 8080).
	Port int
}

// Claims is a remote.Acquirer backed by SandboxClaim resources.
type Claims struct {
	client client.Client
	cfg    Config
}

var _ remote.Acquirer = (*Claims)(nil)

// claimName is replaced in tests.
var claimName = func() string {
	return "aython-run-" + uuid.NewString()
}

// NewScheme registers the agent-sandbox API types.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox extension types: %w", err)
	}
	return scheme, nil
}

// New wraps an existing controller-runtime client.
func New(c client.Client, cfg Config) (*Claims, error) {
	if cfg.Template == "" {
		return nil, fmt.Errorf("kubernetes sandbox: template is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Claims{client: c, cfg: cfg}, nil
}

// NewFromKubeconfig builds a client from the in-cluster config or the
// local kubeconfig.
func NewFromKubeconfig(cfg Config) (*Claims, error) {
	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	scheme, err := NewScheme()
	if err != nil {
		return nil, err
	}
	c, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return New(c, cfg)
}

// Acquire claims a sandbox and returns its base URL.
func (c *Claims) Acquire(ctx context.Context) (string, func(), error) {
	name := claimName()
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: c.cfg.Namespace},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{Name: c.cfg.Template},
		},
	}
	if err := c.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("creating SandboxClaim %s: %w", name, err)
	}
	debug.Log("sandbox", "created SandboxClaim", "name", name, "template", c.cfg.Template)

	fqdn, err := c.waitReady(ctx, name)
	if err != nil {
		c.release(name)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, c.cfg.Port)
	debug.Log("sandbox", "sandbox ready", "name", name, "url", url)
	return url, func() { c.release(name) }, nil
}

// waitReady polls the Sandbox bound to claim name until it is Ready and
// has a service address.
func (c *Claims) waitReady(ctx context.Context, name string) (string, error) {
	var fqdn string
	key := types.NamespacedName{Name: name, Namespace: c.cfg.Namespace}

	err := wait.PollUntilContextTimeout(ctx, 500*time.Millisecond, c.cfg.ReadyTimeout, false,
		func(ctx context.Context) (bool, error) {
			var sb sandboxv1alpha1.Sandbox
			if err := c.client.Get(ctx, key, &sb); err != nil {
				// The controller has not created it yet.
				return false, nil
			}
			if !Ready(&sb) || sb.Status.ServiceFQDN == "" {
				return false, nil
			}
			fqdn = sb.Status.ServiceFQDN
			return true, nil
		})
	if err != nil {
		return "", fmt.Errorf("waiting for Sandbox %s (timeout %s): %w", name, c.cfg.ReadyTimeout, err)
	}
	return fqdn, nil
}

// release deletes a claim. It runs on cleanup paths, so failures are only
// logged.
func (c *Claims) release(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: c.cfg.Namespace},
	}
	if err := client.IgnoreNotFound(c.client.Delete(ctx, claim)); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", c.cfg.Namespace, "error", err)
	}
}

// Ready reports whether sb carries a true Ready condition.
func Ready(sb *sandboxv1alpha1.Sandbox) bool {
	return meta.IsStatusConditionTrue(sb.Status.Conditions, string(sandboxv1alpha1.SandboxConditionReady))
}
