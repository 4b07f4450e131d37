// Package provider defines the interface for code generation backends.
//
// A backend turns one instruction into either a structured reply (a JSON
// object carrying the generated code) or free-form text. Adapters in the
// subpackages speak their own protocol (OpenAI, Anthropic, Gemini or any
// OpenAI-compatible Chat Completions server) and hide it behind
// [Provider]. The factory subpackage selects an adapter from configuration.
package provider
