package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type chatCompletionsStub struct {
	calls       int
	choicesPerN func(n int) int
}

func (s *chatCompletionsStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		s.calls++

		var req struct {
			Model    string `json:"model"`
			N        int    `json:"n"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("expected a single user message, got %+v", req.Messages)
		}

		n := req.N
		if n == 0 {
			n = 1
		}
		choices := make([]map[string]interface{}, 0, n)
		for i := 0; i < s.choicesPerN(n); i++ {
			choices = append(choices, map[string]interface{}{
				"index": i,
				"message": map[string]string{
					"role":    "assistant",
					"content": fmt.Sprintf("call %d choice %d", s.calls, i),
				},
				"finish_reason": "stop",
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": choices,
		})
	}
}

func newOpenAITestClient(t *testing.T, serverURL string) *OpenAIClient {
	t.Helper()

	client, err := NewOpenAIClient(OpenAIConfig{
		APIKey:         "sk-test",
		Model:          "gpt-4o-mini",
		BaseURL:        serverURL + "/v1",
		TimeoutSeconds: 30,
		MaxTokens:      256,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error: %v", err)
	}
	return client
}

func TestNewOpenAIClient_RequiresModel(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test"})
	if err == nil {
		t.Fatal("Expected error for missing model")
	}
}

func TestNewOpenAIClient_DefaultName(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if client.Name() != "openai" {
		t.Errorf("Expected default name openai, got %q", client.Name())
	}
}

func TestNewOpenAIClient_LMStudioIdentity(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{
		Model:   "local-model",
		BaseURL: "http://localhost:1234/v1",
		Name:    TypeLMStudio,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if client.Name() != "lmstudio" {
		t.Errorf("Expected name lmstudio, got %q", client.Name())
	}
}

func TestOpenAIClient_Generate_SingleCallWithN(t *testing.T) {
	stub := &chatCompletionsStub{choicesPerN: func(n int) int { return n }}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	client := newOpenAITestClient(t, server.URL)

	responses, err := client.Generate(context.Background(), "test prompt", 0.9, 3)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if len(responses) != 3 {
		t.Fatalf("Expected 3 responses, got %d", len(responses))
	}
	if stub.calls != 1 {
		t.Errorf("Expected a single API call when n is honored, got %d", stub.calls)
	}
}

func TestOpenAIClient_Generate_TopUpWhenNIgnored(t *testing.T) {
	// LM Studio ignores n and always returns one choice.
	stub := &chatCompletionsStub{choicesPerN: func(n int) int { return 1 }}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	client := newOpenAITestClient(t, server.URL)

	responses, err := client.Generate(context.Background(), "test prompt", 0.9, 3)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if len(responses) != 3 {
		t.Fatalf("Expected 3 responses, got %d", len(responses))
	}
	if stub.calls != 3 {
		t.Errorf("Expected 3 API calls when n is ignored, got %d", stub.calls)
	}
}
