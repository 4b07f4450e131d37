// Package sanitize turns raw model output into plain source text.
//
// Models wrap code in markdown fences, in a JSON envelope, or both. Clean
// removes every fence marker and unwraps the envelope's code field. It never
// fails: text that is not a JSON envelope is returned fence-stripped.
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CodeField is the envelope field holding the generated code.
const CodeField = "code_snippet"

var (
	openingFence = regexp.MustCompile("\\s*```[a-zA-Z]*\\n?")
	strayFence   = regexp.MustCompile("\\s*```")
)

// Envelope is the structured reply a model returns when asked for JSON.
type Envelope struct {
	Name        string   `json:"name,omitempty"`
	CodeSnippet string   `json:"code_snippet"`
	Deps        []string `json:"deps,omitempty"`
}

// StripFences removes opening fences (with an optional language tag) and
// any remaining fence markers, then trims surrounding whitespace.
func StripFences(text string) string {
	if text == "" {
		return ""
	}
	// Removing a marker can join backticks into a new one, so repeat until
	// none are left.
	for strings.Contains(text, "```") {
		text = openingFence.ReplaceAllString(text, "")
		text = strayFence.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// Clean returns the best-effort plain code contained in raw.
//
// Clean is idempotent: Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	text := StripFences(raw)
	for {
		code, ok := unwrap(text)
		if !ok {
			return text
		}
		// The code field is strictly shorter than its envelope.
		text = StripFences(code)
	}
}

// ParseEnvelope decodes a structured reply. It reports false when raw is not
// a JSON object carrying a string code field.
func ParseEnvelope(raw string) (Envelope, bool) {
	var env Envelope
	text := StripFences(raw)
	if !looksLikeObject(text) {
		return env, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return env, false
	}
	rawCode, ok := fields[CodeField]
	if !ok {
		return env, false
	}
	if err := json.Unmarshal(rawCode, &env.CodeSnippet); err != nil {
		return env, false
	}
	// Name and deps are optional and best effort.
	if v, ok := fields["name"]; ok {
		_ = json.Unmarshal(v, &env.Name)
	}
	if v, ok := fields["deps"]; ok {
		_ = json.Unmarshal(v, &env.Deps)
	}
	env.CodeSnippet = Clean(env.CodeSnippet)
	return env, true
}

func unwrap(text string) (string, bool) {
	if !looksLikeObject(text) {
		return "", false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return "", false
	}
	code, ok := fields[CodeField].(string)
	return code, ok
}

func looksLikeObject(text string) bool {
	return strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}")
}
