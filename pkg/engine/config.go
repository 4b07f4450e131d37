package engine

// DefaultRetries is the attempt budget used when Config.Retries is unset.
const DefaultRetries = 3

// Config holds generation settings.
type Config struct {
	// Model is sent to the provider with every attempt.
	Model string

	// Retries is the maximum number of attempts per Generate call.
	// Zero or negative means DefaultRetries.
	Retries int

	// ValidationFeedback appends the previous candidate's syntax error to
	// the next attempt's instructions. Off by default: failed attempts
	// are retried with identical instructions.
	ValidationFeedback bool

	// System is an optional system prompt. Empty uses DefaultSystemPrompt.
	System string

	// Temperature and MaxTokens are passed through when set.
	Temperature *float64
	MaxTokens   *int
}

func (c Config) retries() int {
	if c.Retries <= 0 {
		return DefaultRetries
	}
	return c.Retries
}

func (c Config) system() string {
	if c.System == "" {
		return DefaultSystemPrompt
	}
	return c.System
}
