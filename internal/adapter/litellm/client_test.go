package litellm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/convoke-ai/convoke/internal/config"
	"github.com/convoke-ai/convoke/internal/port/generation"
	"github.com/convoke-ai/convoke/internal/resilience"
)

func testSourceConfig(name string, weight float64) config.Source {
	return config.Source{Name: name, Model: "openai/gpt-4o-mini", Weight: weight}
}

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestChatCompletion(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "openai/gpt-4o" {
			t.Errorf("model = %q, want openai/gpt-4o", req.Model)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
		})
	})

	c := NewClient(srv.URL, "sk-test")
	got, err := c.ChatCompletion(context.Background(), "openai/gpt-4o", []generation.Message{
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if got != "hello there" {
		t.Errorf("content = %q, want %q", got, "hello there")
	}
}

func TestChatCompletionAPIError(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "model not found"}`, http.StatusNotFound)
	})

	c := NewClient(srv.URL, "")
	_, err := c.ChatCompletion(context.Background(), "missing", nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want status code in message", err)
	}
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	})

	c := NewClient(srv.URL, "")
	_, err := c.ChatCompletion(context.Background(), "m", nil)
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c := NewClient(srv.URL, "")
	c.SetBreaker(resilience.NewBreaker(2, time.Minute))

	ctx := context.Background()
	for range 2 {
		if _, err := c.ChatCompletion(ctx, "m", nil); err == nil {
			t.Fatal("expected error")
		}
	}

	_, err := c.ChatCompletion(ctx, "m", nil)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker") {
		t.Errorf("error = %v, want circuit breaker open", err)
	}
}

func TestModelSource(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
		})
	})

	src := NewModelSource(NewClient(srv.URL, ""), testSourceConfig("primary", 0.9))
	if src.Name() != "primary" {
		t.Errorf("Name = %q, want primary", src.Name())
	}
	if src.Weight() != 0.9 {
		t.Errorf("Weight = %v, want 0.9", src.Weight())
	}

	got, err := src.Generate(context.Background(), []generation.Message{{Role: "user", Content: "x"}}, generation.ModeOnline)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ok" {
		t.Errorf("Generate = %q, want ok", got)
	}
}

func TestDefaultModelFallback(t *testing.T) {
	var models []string
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		models = append(models, req.Model)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
		})
	})

	c := NewClient(srv.URL, "")
	c.SetDefaultModel("local/llama")

	// An empty model name resolves to the client default.
	if _, err := c.ChatCompletion(context.Background(), "", nil); err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	// Offline mode pins the source to the default model too.
	src := NewModelSource(c, testSourceConfig("primary", 0.9))
	if _, err := src.Generate(context.Background(), nil, generation.ModeOffline); err != nil {
		t.Fatalf("Generate offline: %v", err)
	}

	// Online mode keeps the source's own model.
	if _, err := src.Generate(context.Background(), nil, generation.ModeOnline); err != nil {
		t.Fatalf("Generate online: %v", err)
	}

	want := []string{"local/llama", "local/llama", "openai/gpt-4o-mini"}
	for i, m := range want {
		if models[i] != m {
			t.Errorf("request %d model = %q, want %q", i, models[i], m)
		}
	}
}
