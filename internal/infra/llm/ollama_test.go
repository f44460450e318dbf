package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseOllamaLine(t *testing.T) {
	t.Parallel()

	chunk, action := parseOllamaLine([]byte(`{"message":{"role":"assistant","content":"Hi"},"done":false}`))
	if action != emitChunk || chunk.Content != "Hi" {
		t.Errorf("content line = (%+v, %d)", chunk, action)
	}

	chunk, action = parseOllamaLine([]byte(`{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":9,"eval_count":4}`))
	if action != emitChunk {
		t.Fatalf("terminal line action = %d", action)
	}
	if chunk.FinishReason != FinishStop {
		t.Errorf("finish reason = %q", chunk.FinishReason)
	}
	if chunk.Usage == nil || chunk.Usage.PromptTokens != 9 || chunk.Usage.CompletionTokens != 4 || chunk.Usage.TotalTokens != 13 {
		t.Errorf("usage = %+v", chunk.Usage)
	}

	if _, action := parseOllamaLine([]byte("")); action != skipUnit {
		t.Errorf("blank line action = %d", action)
	}
	if _, action := parseOllamaLine([]byte("not json")); action != skipUnit {
		t.Errorf("garbage line action = %d", action)
	}
	if _, action := parseOllamaLine([]byte(`{"message":{"content":""},"done":false}`)); action != skipUnit {
		t.Errorf("empty non-terminal action = %d", action)
	}
}

func TestOllamaCompleteStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("stream flag not set")
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`+"\n") //nolint:errcheck
		io.WriteString(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`+"\n")  //nolint:errcheck
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":5,"eval_count":2}`+"\n") //nolint:errcheck
	}))
	defer srv.Close()

	adapter := NewOllamaAdapter(testConfig(srv.URL, KindOllama))
	stream, err := adapter.CompleteStream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}
	defer stream.Close() //nolint:errcheck

	var content strings.Builder
	var terminal *StreamChunk
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		content.WriteString(chunk.Content)
		if chunk.FinishReason != "" {
			c := chunk
			terminal = &c
		}
	}
	if content.String() != "Hello" {
		t.Errorf("streamed content = %q", content.String())
	}
	if terminal == nil || terminal.Usage == nil || terminal.Usage.TotalTokens != 7 {
		t.Errorf("terminal chunk = %+v", terminal)
	}
}

func TestOllamaOptionsMapping(t *testing.T) {
	t.Parallel()

	opts := ollamaOptions(CompletionRequest{
		Temperature:   0.7,
		MaxTokens:     256,
		StopSequences: []string{"###"},
	})
	if opts["temperature"] != float32(0.7) {
		t.Errorf("temperature = %v", opts["temperature"])
	}
	if opts["num_predict"] != 256 {
		t.Errorf("num_predict = %v", opts["num_predict"])
	}
	if ollamaOptions(CompletionRequest{}) != nil {
		t.Error("empty request should produce nil options")
	}
}

func TestOllamaListModelsLive(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `{"models":[{"name":"llama3.2:latest"},{"name":"phi3:mini"}]}`) //nolint:errcheck
	}))
	defer srv.Close()

	adapter := NewOllamaAdapter(testConfig(srv.URL, KindOllama))
	models, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0].ID != "llama3.2:latest" {
		t.Errorf("models = %+v", models)
	}
}

func TestOllamaListModelsFallback(t *testing.T) {
	t.Parallel()

	// Unreachable daemon: fall back to the static catalogue, never error.
	cfg := testConfig("http://127.0.0.1:1", KindOllama)
	adapter := NewOllamaAdapter(cfg)
	models, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) == 0 {
		t.Fatal("fallback catalogue is empty")
	}
}
