package core

import (
	"strings"
	"unicode/utf8"

	"codeberg.org/modelrelay/relay/internal/errors"
)

const (
	// DefaultMaxPromptLength bounds prompt size when config provides none
	DefaultMaxPromptLength = 50000

	// temperature bounds accepted by every supported provider
	minTemperature = 0.0
	maxTemperature = 2.0
)

// Validate checks the request against the configured limits. Violations
// return a validation error before any dispatch or cache interaction.
func (r Request) Validate(maxPromptLength int) error {
	if maxPromptLength <= 0 {
		maxPromptLength = DefaultMaxPromptLength
	}

	if strings.TrimSpace(r.Prompt) == "" {
		return errors.Validation("prompt must not be empty")
	}

	if n := utf8.RuneCountInString(r.Prompt); n > maxPromptLength {
		return errors.Validationf("prompt length %d exceeds maximum %d", n, maxPromptLength)
	}

	if !r.TaskCategory.Valid() {
		return errors.Validationf("unknown task category %q", r.TaskCategory)
	}

	if r.Temperature < minTemperature || r.Temperature > maxTemperature {
		return errors.Validationf("temperature %.2f out of range [%.1f, %.1f]", r.Temperature, minTemperature, maxTemperature)
	}

	if r.MaxOutputTokens < 0 {
		return errors.Validationf("max_output_tokens must be positive, got %d", r.MaxOutputTokens)
	}

	return nil
}
