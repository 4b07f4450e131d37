package api

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxRequirementSize int
	MaxContextSize     int
	MaxDependencies    int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxRequirementSize: 64 * 1024,
		MaxContextSize:     1024 * 1024, // 1MB
		MaxDependencies:    64,
	}
}

// pip requirement specifiers: name, optional extras, optional version clause.
var depPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(\[[A-Za-z0-9,._-]+\])?([<>=!~]=?[A-Za-z0-9.*+!-]+(,[<>=!~]=?[A-Za-z0-9.*+!-]+)*)?$`)

// ValidateGenerationRequest checks a GenerationRequest for validity. It
// returns an *APIError describing the first failure, or nil.
func ValidateGenerationRequest(req *GenerationRequest, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(req.Requirement) == "" {
		return NewInvalidRequestError("requirements", "requirements must not be empty")
	}

	if cfg.MaxRequirementSize > 0 && len(req.Requirement) > cfg.MaxRequirementSize {
		return NewInvalidRequestError("requirements",
			fmt.Sprintf("requirements exceed maximum of %d bytes", cfg.MaxRequirementSize))
	}

	if cfg.MaxContextSize > 0 && len(req.Context) > cfg.MaxContextSize {
		return NewInvalidRequestError("context",
			fmt.Sprintf("context exceeds maximum of %d bytes", cfg.MaxContextSize))
	}

	return ValidateDependencies(req.Dependencies, cfg)
}

// ValidateDependencies rejects dependency lists that are too long or
// contain entries that are not plain pip requirement specifiers. The
// entries end up in a container build recipe, so anything that could
// smuggle shell syntax is refused.
func ValidateDependencies(deps []string, cfg ValidationConfig) *APIError {
	if cfg.MaxDependencies > 0 && len(deps) > cfg.MaxDependencies {
		return NewInvalidRequestError("deps",
			fmt.Sprintf("deps exceed maximum of %d entries", cfg.MaxDependencies))
	}
	for i, d := range deps {
		if !depPattern.MatchString(d) {
			return NewInvalidRequestError(fmt.Sprintf("deps[%d]", i),
				fmt.Sprintf("invalid dependency specifier %q", d))
		}
	}
	return nil
}
