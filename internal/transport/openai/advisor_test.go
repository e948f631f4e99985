package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func advisorServer(t *testing.T, content string, choices int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"model":   "test-model",
			"choices": []map[string]any{},
		}
		for i := 0; i < choices; i++ {
			resp["choices"] = append(resp["choices"].([]map[string]any), map[string]any{
				"index":         i,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func testAdvisor(url string) *Advisor {
	return NewAdvisor(&AdvisorConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})
}

func TestAdvisor_Advise(t *testing.T) {
	server := advisorServer(t, "  Try filtering by the UK silo.  ", 1)
	defer server.Close()

	got, err := testAdvisor(server.URL).Advise(context.Background(), "solar grants")
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if got != "Try filtering by the UK silo." {
		t.Errorf("advisory = %q", got)
	}
}

func TestAdvisor_NoChoices(t *testing.T) {
	server := advisorServer(t, "", 0)
	defer server.Close()

	if _, err := testAdvisor(server.URL).Advise(context.Background(), "solar grants"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestAdvisor_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "overloaded", "type": "server_error"},
		})
	}))
	defer server.Close()

	if _, err := testAdvisor(server.URL).Advise(context.Background(), "solar grants"); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestNewAdvisor_DefaultMaxTokens(t *testing.T) {
	a := NewAdvisor(&AdvisorConfig{APIKey: "k", Model: "m", Logger: zap.NewNop()})
	if a.maxTokens != 120 {
		t.Errorf("maxTokens = %d, want 120", a.maxTokens)
	}
}
