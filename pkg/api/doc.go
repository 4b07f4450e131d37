// Package api defines the core data types shared by the aython generation
// engine, the execution sandboxes and the outer transports.
//
// The types are plain values with JSON tags. They carry no protocol
// specific behavior, so the same structs flow through the JSON-RPC server,
// the MCP tools and the CLI unchanged.
//
// Core types:
//   - [GenerationRequest]: a natural-language requirement plus optional context
//   - [GenerationResult]: the outcome of one generation loop, including its debug log
//   - [ExecutionResult]: exit code and captured output of one sandbox run
//   - [RunResult]: the combined generate-and-execute outcome
//   - [RunRecord]: a persisted history entry
//   - [APIError]: structured error with type, code, param, and message
package api
