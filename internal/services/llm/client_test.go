package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"courier/internal/dispatch"
	"courier/internal/services"
	"courier/internal/services/httpx"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	}
}

func fastRetry() Option {
	return WithRetryPolicy(httpx.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Sleeper: func(time.Duration) {}})
}

func TestGenerateSendsHistoryAndPrompt(t *testing.T) {
	var captured chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(completionBody("  hi there  "))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model", SystemPrompt: "be brief"})
	reply, err := client.Generate(context.Background(), dispatch.GenerateRequest{
		UserID:    "u1",
		ChannelID: "c1",
		Prompt:    "hello",
		History: []dispatch.Turn{
			{Role: dispatch.RoleUser, Content: "earlier"},
			{Role: dispatch.RoleAssistant, Content: "earlier reply"},
			{Role: "tool", Content: "odd role"},
			{Role: dispatch.RoleUser, Content: "   "},
		},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if captured.Model != "demo-model" || captured.User != "u1" {
		t.Fatalf("unexpected request %+v", captured)
	}
	roles := make([]string, 0, len(captured.Messages))
	for _, msg := range captured.Messages {
		roles = append(roles, msg.Role)
	}
	if got := strings.Join(roles, ","); got != "system,user,assistant,user,user" {
		t.Fatalf("unexpected roles %s", got)
	}
	if captured.Messages[0].Content != "be brief" || captured.Messages[4].Content != "hello" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	_, err := client.Generate(context.Background(), dispatch.GenerateRequest{Prompt: "hello"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerateRetriesEmptyContent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(completionBody(""))
			return
		}
		_ = json.NewEncoder(w).Encode(completionBody("second time lucky"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"}, fastRetry())
	reply, err := client.Generate(context.Background(), dispatch.GenerateRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if reply != "second time lucky" || calls.Load() != 2 {
		t.Fatalf("reply=%q calls=%d", reply, calls.Load())
	}
}

func TestGenerateDoesNotRetryUnauthorized(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"}, fastRetry())
	_, err := client.Generate(context.Background(), dispatch.GenerateRequest{Prompt: "hello"})
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", calls.Load())
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody("```json\n{\"ok\":true}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestDecodeLLMJSONExtractsEmbeddedObject(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON("sure! {\"ok\": true} hope that helps", &parsed); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if !parsed.OK {
		t.Fatal("expected ok=true")
	}
	if err := DecodeLLMJSON("", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
