package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Definition)
	registryMu sync.RWMutex
)

// Register adds a record type definition to the registry.
// Panics if a type with the same key is already registered.
func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Key]; exists {
		panic(fmt.Sprintf("record type already registered: %s", def.Key))
	}

	registry[def.Key] = def
}

// Lookup returns a record type definition by key.
// Returns false if not found.
func Lookup(key string) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// RecordTypes returns all registered definitions, sorted by key for
// consistent ordering.
func RecordTypes() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Definition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}
