package core

import (
	"sort"
	"sync"
)

// ResourceFactory is a function that creates a new resource instance.
type ResourceFactory func(name string, params map[string]interface{}, ctx *SystemContext) (Resource, error)

var (
	resourceRegistry = make(map[string]ResourceFactory)
	registryMu       sync.RWMutex
)

// RegisterResource registers a resource factory for a given function name
// such as "qvm.present".
func RegisterResource(typeName string, factory ResourceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[typeName] = factory
}

// CreateResource instantiates a resource of the given type.
func CreateResource(typeName string, name string, params map[string]interface{}, ctx *SystemContext) (Resource, error) {
	registryMu.RLock()
	factory, ok := resourceRegistry[typeName]
	registryMu.RUnlock()

	if !ok {
		return nil, DeclarationError("unknown function: %s", typeName)
	}

	return factory(name, params, ctx)
}

// IsRegistered reports whether a factory exists for typeName.
func IsRegistered(typeName string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := resourceRegistry[typeName]
	return ok
}

// GetRegisteredTypes returns a sorted list of all registered resource types.
func GetRegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(resourceRegistry))
	for t := range resourceRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
