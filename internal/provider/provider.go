// Package provider implements the response acquisition collaborators:
// LLM clients that sample multiple responses for a prompt at a given
// temperature. The drift core only ever sees the materialized response
// sets these produce.
package provider

import "context"

// Provider samples text responses from one LLM backend.
type Provider interface {
	// Name returns the stable provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Generate samples count responses for the prompt at the given
	// temperature. Responses are returned in sampling order. Any failure
	// (auth, rate limit, network) is returned to the caller; there is no
	// partial recovery.
	Generate(ctx context.Context, prompt string, temperature float64, count int) ([]string, error)
}

// Type identifies a supported provider backend.
type Type string

// Supported provider types.
const (
	TypeOpenAI    Type = "openai"
	TypeAnthropic Type = "anthropic"
	TypeOllama    Type = "ollama"
	TypeLMStudio  Type = "lmstudio"
)

// ValidTypes returns a list of valid provider types.
func ValidTypes() []Type {
	return []Type{TypeOpenAI, TypeAnthropic, TypeOllama, TypeLMStudio}
}

// IsValidType checks if the given provider type is valid.
func IsValidType(pt string) bool {
	for _, valid := range ValidTypes() {
		if string(valid) == pt {
			return true
		}
	}
	return false
}
