package datasource

import (
	"sort"
	"sync"
)

// AdapterInfo describes a registered engine.
type AdapterInfo struct {
	Engine      string `json:"engine"`
	DisplayName string `json:"display_name"`
}

// Registration pairs engine info with its factory.
type Registration struct {
	Info    AdapterInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each engine package's init function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Engine] = reg
}

// GetFactory returns the factory for engine, or nil if it is not compiled in.
func GetFactory(engine string) Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[engine]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered reports whether engine has an adapter.
func IsRegistered(engine string) bool {
	return GetFactory(engine) != nil
}

// RegisteredAdapters returns all registered engines sorted by name.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Engine < result[j].Engine })
	return result
}
