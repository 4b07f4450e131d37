// Package auth authenticates callers of the JSON-RPC and MCP endpoints.
//
// Authenticators vote Yes, No or Abstain on each request and a Chain stops
// at the first non-abstaining vote. The HTTP middleware runs the chain,
// applies per-tier rate limits and stores the caller's identity and
// tenant in the request context, where the history store picks the
// tenant up.
package auth
