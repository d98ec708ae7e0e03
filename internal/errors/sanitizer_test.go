package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		leak  string // substring that must not survive sanitization
	}{
		{
			name:  "anthropic api key",
			input: "request failed: key sk-ant-REDACTED rejected",
			leak:  "sk-ant-REDACTED",
		},
		{
			name:  "openai api key",
			input: "401 unauthorized: sk-proj-abcdefghijklmnopqrstuvwx invalid",
			leak:  "sk-proj-abcdefghijklmnopqrstuvwx",
		},
		{
			name:  "telegram bot token",
			input: "bot 123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw failed",
			leak:  "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw",
		},
		{
			name:  "bearer token",
			input: "header Bearer eyJhbGciOiJIUzI1NiJ9.payload rejected",
			leak:  "Bearer eyJhbGciOiJIUzI1NiJ9.payload",
		},
		{
			name:  "api key in URL",
			input: "GET https://example.com/v1?api_key=secret123 failed",
			leak:  "api_key=secret123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeString(tt.input)
			if strings.Contains(got, tt.leak) {
				t.Errorf("Credential leaked through sanitization: %q", got)
			}
			if !strings.Contains(got, redactedPlaceholder) {
				t.Errorf("Expected %q placeholder in %q", redactedPlaceholder, got)
			}
		})
	}
}

func TestSanitizeString_NoCredentials(t *testing.T) {
	input := "connection refused: dial tcp 127.0.0.1:11434"
	if got := SanitizeString(input); got != input {
		t.Errorf("Clean string should pass through unchanged, got %q", got)
	}
}

func TestSanitizeError(t *testing.T) {
	if SanitizeError(nil) != nil {
		t.Error("SanitizeError(nil) should be nil")
	}

	clean := errors.New("plain failure")
	if SanitizeError(clean) != clean {
		t.Error("Clean error should be returned unchanged to preserve the chain")
	}

	dirty := errors.New("auth failed for sk-ant-REDACTED")
	sanitized := SanitizeError(dirty)
	if strings.Contains(sanitized.Error(), "sk-ant-api03") {
		t.Errorf("Credential leaked: %q", sanitized.Error())
	}
	if !errors.Is(sanitized, dirty) {
		t.Error("Sanitized error should unwrap to the original")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "context") != nil {
		t.Error("Wrapf(nil) should be nil")
	}

	err := errors.New("key sk-ant-REDACTED rejected")
	wrapped := Wrapf(err, "API call failed after %d attempts", 3)

	if !strings.Contains(wrapped.Error(), "API call failed after 3 attempts") {
		t.Errorf("Missing wrap context: %q", wrapped.Error())
	}
	if strings.Contains(wrapped.Error(), "sk-ant-api03") {
		t.Errorf("Credential leaked through Wrapf: %q", wrapped.Error())
	}
}

func TestContainsCredentials(t *testing.T) {
	if !ContainsCredentials("token sk-ant-REDACTED") {
		t.Error("Expected credentials to be detected")
	}
	if ContainsCredentials("The sky is blue today.") {
		t.Error("Expected no credentials in plain text")
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"sk-ant-api03-abcdef123456", "sk-ant-***..."},
		{"123456789:AAHdqTcvCH1vGW", "123456789:***..."},
		{"sk-proj-abcdef123456", "sk-p***..."},
		{"short", "*****"},
	}

	for _, tt := range tests {
		if got := MaskCredential(tt.input); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWrapf_PreservesErrorChain(t *testing.T) {
	base := fmt.Errorf("base error")
	wrapped := Wrapf(base, "outer context")

	if !errors.Is(wrapped, base) {
		t.Error("Wrapped error should match the base via errors.Is")
	}
}
