// Package openaicompat provides a generation backend for any
// OpenAI-compatible Chat Completions server (vLLM, LiteLLM, Ollama, the
// bundled mock backend). It handles request serialization, JSON schema
// response formats, model name mapping, response parsing, and error mapping.
package openaicompat
