package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) (*OpenAIEngine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIEngine("test-key", srv.URL+"/v1"), srv
}

func TestOpenAIEngine_Chat(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	e, _ := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "Your manager is Anna."},
				"finish_reason": "stop",
			}},
		})
	})

	got, err := e.Chat(context.Background(), "gpt-4o-mini", []Message{
		{Role: RoleSystem, Content: "You are an HR assistant."},
		{Role: RoleUser, Content: "Who is my manager?"},
	}, ChatOptions{Temperature: Float64(0.3)})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Your manager is Anna." {
		t.Errorf("got %q", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if msgs, _ := gotBody["messages"].([]any); len(msgs) != 2 {
		t.Errorf("sent %d messages, want 2", len(msgs))
	}
}

func TestOpenAIEngine_EmbedOrdersByIndex(t *testing.T) {
	var gotInputs []any
	e, _ := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotInputs, _ = body["input"].([]any)
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
			"model": "text-embedding-3-small",
		})
	})

	vecs, err := e.Embed(context.Background(), "text-embedding-3-small", []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(gotInputs) != 2 {
		t.Errorf("sent %d inputs in one request, want 2", len(gotInputs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not in input order: %v", vecs)
	}
}

func TestOpenAIEngine_ServerErrorIsTransient(t *testing.T) {
	e, _ := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	_, err := e.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: RoleUser, Content: "hi"}}, ChatOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("IsTransient(%v) = false, want true", err)
	}
}

func TestOpenAIEngine_ListModels(t *testing.T) {
	e, _ := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "gpt-4o-mini", "object": "model"}},
		})
	})

	if !e.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
	if !e.HasModel(context.Background(), "gpt-4o-mini") {
		t.Error("HasModel(gpt-4o-mini) = false, want true")
	}
	if err := e.PullModel(context.Background(), "x", nil); !errors.Is(err, ErrPullUnsupported) {
		t.Errorf("PullModel error = %v, want ErrPullUnsupported", err)
	}
}
