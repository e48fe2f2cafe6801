package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"openclaw/hub/pkg/providers"
)

var _ providers.Provider = (*Client)(nil)

func TestComplete_UsesCompatEndpointWithoutAuth(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		json.NewEncoder(w).Encode(map[string]any{
			"model": "qwen2.5:32b",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hi"}},
			},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	c := New("local", srv.URL)
	defer c.Close()

	resp, err := c.Complete(context.Background(), &providers.CompletionRequest{
		Model:     "qwen2.5:32b",
		Messages:  []providers.Message{{Role: "user", Content: "hi"}},
		MaxTokens: 10,
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
	if resp.CostUSD != 0 {
		t.Errorf("local models are free, got cost %v", resp.CostUSD)
	}
	if c.Family() != "ollama" {
		t.Errorf("unexpected family %q", c.Family())
	}
}

func TestListModelsAndProbe_UseNativeTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "qwen2.5:32b"},
				{"name": "llama3.3:70b"},
			},
		})
	}))
	defer srv.Close()

	c := New("local", srv.URL)
	defer c.Close()

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models failed: %v", err)
	}
	if len(models) != 2 || models[1] != "llama3.3:70b" {
		t.Errorf("unexpected models: %v", models)
	}

	probe, err := c.Probe(context.Background())
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if !probe.OK {
		t.Errorf("unexpected probe result: %+v", probe)
	}
}

func TestProbe_DownServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New("local", srv.URL)
	defer c.Close()

	if _, err := c.Probe(context.Background()); err == nil {
		t.Error("expected probe error against a down server")
	}
}
