package provider

import (
	"context"
)

// Provider abstracts a code generation backend. The engine calls Complete
// once per attempt and never streams.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "gemini").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// Complete performs one synchronous generation call.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
