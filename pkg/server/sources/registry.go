package sources

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]ProviderFactory)
	mu       sync.RWMutex
)

// Register adds a provider factory to the registry under "<kind>.<name>"
func Register(key string, factory ProviderFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[key] = factory
}

// Create creates a new provider instance by kind and name
func Create(kind, name string, config map[string]interface{}) (Provider, error) {
	mu.RLock()
	factory, ok := registry[fmt.Sprintf("%s.%s", kind, name)]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProvider, kind, name)
	}

	return factory(config)
}

// List returns all registered provider keys, sorted
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
