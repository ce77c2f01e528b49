package core

import (
	"fmt"
	"sort"
	"sync"
)

// ConnectionsDataset is the selector for the trade connection graph.
// It is not a fact dataset and is never registered.
const ConnectionsDataset = "connections"

// CombinedDataset is the map selector that joins two fact datasets.
const CombinedDataset = "combined"

var (
	registry   = make(map[string]DatasetDefinition)
	registryMu sync.RWMutex
)

// Register adds a dataset definition to the registry.
// Panics if a dataset with the same key is already registered.
func Register(def DatasetDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if def.Info.Key == ConnectionsDataset || def.Info.Key == CombinedDataset {
		panic(fmt.Sprintf("reserved dataset key: %s", def.Info.Key))
	}
	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", def.Info.Key))
	}
	if def.Classify == nil {
		panic(fmt.Sprintf("dataset %s has no classifier", def.Info.Key))
	}

	// Populate Columns from FieldSpecs if not set
	if len(def.Info.Columns) == 0 && len(def.FieldSpecs) > 0 {
		def.Info.Columns = make([]string, len(def.FieldSpecs))
		for i, spec := range def.FieldSpecs {
			def.Info.Columns[i] = spec.Name
		}
	}

	registry[def.Info.Key] = def
}

// Get returns a dataset definition by key.
// Returns false if not found.
func Get(key string) (DatasetDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered dataset definitions sorted by key.
func All() []DatasetDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasetDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// DatasetCount returns the number of registered datasets.
func DatasetCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// lookupDataset returns the definition for key or a ValidationError naming
// the known datasets.
func lookupDataset(key string) (DatasetDefinition, error) {
	def, ok := Get(key)
	if !ok {
		return DatasetDefinition{}, &ValidationError{
			Field:   "dataset",
			Value:   key,
			Message: fmt.Sprintf("unknown dataset %q", key),
		}
	}
	return def, nil
}
