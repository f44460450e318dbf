package llm

import (
	"sync"
	"testing"
	"time"
)

func registryConfig(id string, kind ProviderKind) ProviderConfig {
	cfg := DefaultProviderConfig()
	cfg.ID = id
	cfg.Name = id
	cfg.Kind = kind
	cfg.APIKey = "sk-test"
	return cfg
}

func TestRegistryGetOrCreateCaches(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	first := reg.GetOrCreate(registryConfig("p1", KindOpenAI))
	second := reg.GetOrCreate(registryConfig("p1", KindOpenAI))
	if first != second {
		t.Error("same id must return the cached instance")
	}
	if reg.Count() != 1 {
		t.Errorf("count = %d", reg.Count())
	}
}

func TestRegistryKindDispatch(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	if _, ok := reg.GetOrCreate(registryConfig("c", KindClaude)).(*ClaudeAdapter); !ok {
		t.Error("claude kind did not build a ClaudeAdapter")
	}
	if _, ok := reg.GetOrCreate(registryConfig("o", KindOllama)).(*OllamaAdapter); !ok {
		t.Error("ollama kind did not build an OllamaAdapter")
	}
	if _, ok := reg.GetOrCreate(registryConfig("x", KindCustom)).(*OpenAIAdapter); !ok {
		t.Error("custom kind must be served by the OpenAI adapter")
	}
}

func TestRegistryMockFallbackWithoutCredential(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	cfg := registryConfig("no-key", KindOpenAI)
	cfg.APIKey = ""
	if _, ok := reg.GetOrCreate(cfg).(*MockAdapter); !ok {
		t.Error("credential-less provider must fall back to the mock adapter")
	}

	ollama := registryConfig("local", KindOllama)
	ollama.APIKey = ""
	if _, ok := reg.GetOrCreate(ollama).(*OllamaAdapter); !ok {
		t.Error("ollama needs no credential and must not fall back")
	}
}

func TestRegistryGetMiss(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, err := reg.Get("nope")
	if !IsKind(err, ErrKindProviderMissing) {
		t.Fatalf("got %v, want provider-not-available", err)
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	old := reg.GetOrCreate(registryConfig("p", KindOpenAI))

	updated := registryConfig("p", KindOpenAI)
	updated.DefaultModel = "gpt-4o"
	replacement := reg.Register(updated)
	if replacement == old {
		t.Error("Register must rebuild the adapter")
	}
	if got := reg.DefaultModel("p"); got != "gpt-4o" {
		t.Errorf("default model = %q", got)
	}
}

func TestRegistryInvalidate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.GetOrCreate(registryConfig("a", KindOpenAI))
	reg.GetOrCreate(registryConfig("b", KindOllama))

	reg.Invalidate("a")
	if _, err := reg.Get("a"); err == nil {
		t.Error("invalidated provider still resolvable")
	}
	if reg.Count() != 1 {
		t.Errorf("count = %d", reg.Count())
	}

	reg.InvalidateAll()
	if reg.Count() != 0 {
		t.Errorf("count after InvalidateAll = %d", reg.Count())
	}
}

func TestRegistryDefaultModelFallsBack(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	want := DefaultProviderConfig().DefaultModel
	if got := reg.DefaultModel("unknown"); got != want {
		t.Errorf("default model for unknown provider = %q, want %q", got, want)
	}
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	cfg := registryConfig("shared", KindOpenAI)

	var wg sync.WaitGroup
	results := make([]Provider, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = reg.GetOrCreate(cfg)
		}(i)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for concurrent GetOrCreate")
	}

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent GetOrCreate returned distinct instances")
		}
	}
}

func TestRegistryListProviders(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.GetOrCreate(registryConfig("a", KindOpenAI))
	reg.GetOrCreate(registryConfig("b", KindClaude))
	infos := reg.ListProviders()
	if len(infos) != 2 {
		t.Fatalf("got %d infos", len(infos))
	}
}
