package llm

import "sync"

// Registry caches one adapter instance per provider id alongside the config
// it was built from. Reads dominate (every chat turn resolves a provider),
// so lookups take the read lock and the common path avoids the write lock
// entirely.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]Provider
	configs   map[string]ProviderConfig
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]Provider),
		configs:   make(map[string]ProviderConfig),
	}
}

// createAdapter dispatches on the configured kind. Custom providers are
// OpenAI-compatible by definition. Kinds that require a credential fall back
// to the offline mock when none is configured, so a fresh install can chat
// before any API key is entered.
func createAdapter(config ProviderConfig) Provider {
	switch config.Kind {
	case KindOllama:
		return NewOllamaAdapter(config)
	case KindClaude:
		if config.APIKey == "" {
			return NewMockAdapter(config)
		}
		return NewClaudeAdapter(config)
	default:
		if config.APIKey == "" {
			return NewMockAdapter(config)
		}
		return NewOpenAIAdapter(config)
	}
}

// Register builds (or rebuilds) the adapter for config and caches it. An
// existing entry under the same id is replaced, so re-registering after a
// config edit is the way to pick the edit up.
func (r *Registry) Register(config ProviderConfig) Provider {
	adapter := createAdapter(config)
	r.mu.Lock()
	r.instances[config.ID] = adapter
	r.configs[config.ID] = config
	r.mu.Unlock()
	return adapter
}

// Get returns the cached adapter for providerID, or a provider-not-available
// error when none is registered.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	adapter, ok := r.instances[providerID]
	r.mu.RUnlock()
	if !ok {
		return nil, ProviderNotAvailable(providerID)
	}
	return adapter, nil
}

// GetOrCreate returns the cached adapter for config.ID, building and caching
// one on a miss. The cached instance wins even if config differs from the
// one it was built with; use Register or Invalidate to force a rebuild.
func (r *Registry) GetOrCreate(config ProviderConfig) Provider {
	r.mu.RLock()
	adapter, ok := r.instances[config.ID]
	r.mu.RUnlock()
	if ok {
		return adapter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check: another goroutine may have won the race to create it.
	if adapter, ok := r.instances[config.ID]; ok {
		return adapter
	}
	adapter = createAdapter(config)
	r.instances[config.ID] = adapter
	r.configs[config.ID] = config
	return adapter
}

// Config returns the config an adapter was registered with.
func (r *Registry) Config(providerID string) (ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[providerID]
	return config, ok
}

// DefaultModel resolves the default model for providerID without blocking
// behind writers: under write contention it falls back to the global
// default rather than wait, since a stale default is harmless.
func (r *Registry) DefaultModel(providerID string) string {
	if !r.mu.TryRLock() {
		return DefaultProviderConfig().DefaultModel
	}
	defer r.mu.RUnlock()
	if config, ok := r.configs[providerID]; ok && config.DefaultModel != "" {
		return config.DefaultModel
	}
	return DefaultProviderConfig().DefaultModel
}

// Invalidate evicts one provider's cached adapter and config.
func (r *Registry) Invalidate(providerID string) {
	r.mu.Lock()
	delete(r.instances, providerID)
	delete(r.configs, providerID)
	r.mu.Unlock()
}

// InvalidateAll empties the cache.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	r.instances = make(map[string]Provider)
	r.configs = make(map[string]ProviderConfig)
	r.mu.Unlock()
}

// Count returns how many adapters are cached.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// ListProviders returns the info of every registered adapter. Order is not
// specified.
func (r *Registry) ListProviders() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ProviderInfo, 0, len(r.instances))
	for _, adapter := range r.instances {
		infos = append(infos, adapter.Info())
	}
	return infos
}
