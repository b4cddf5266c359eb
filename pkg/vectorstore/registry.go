package vectorstore

import (
	"fmt"
	"sync"
)

// Factory creates a Store from a Config.
type Factory func(cfg Config) (Store, error)

// Config selects and configures a driver. Driver-specific sections are
// nil unless that driver is selected.
type Config struct {
	// Provider names a registered driver ("memory", "qdrant").
	Provider string `yaml:"provider"`

	// Dimensions is the embedding vector size.
	Dimensions int `yaml:"dimensions"`

	// Qdrant configures the qdrant driver.
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig holds qdrant connection settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a driver to the registry. Drivers call this from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("vectorstore: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("vectorstore: Register called twice for driver " + name)
	}
	registry[name] = factory
}

// New creates a Store for the configured provider.
func New(cfg Config) (Store, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown vector store provider: %q (registered: %v)", cfg.Provider, Providers())
	}
	return factory(cfg)
}

// Providers lists all registered driver names.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
