package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const runIDPrefix = "run_"

var runIDPattern = regexp.MustCompile(`^run_[a-f0-9]{32}$`)

// NewRunID generates a new run ID with the "run_" prefix followed by the
// 32 hex digits of a random UUID.
func NewRunID() string {
	return runIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateRunID checks whether the given string is a valid run ID.
func ValidateRunID(id string) bool {
	return runIDPattern.MatchString(id)
}
