// Package service holds aython's agent state and exposes it to the
// transports. A Service starts uninitialized; init_agent builds a provider
// for the requested model and later calls generate with it. Execution and
// history do not need an initialized agent.
//
// Register binds the JSON-RPC methods to a transport.Router. The MCP
// transport calls the Service methods directly.
package service
