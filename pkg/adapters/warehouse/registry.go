package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql", "sqlite"
	DisplayName string `json:"display_name"` // "PostgreSQL"
	Description string `json:"description"`
}

// Registration pairs adapter info with its factory.
type Registration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, cfg Config) (Warehouse, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for every registered adapter, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(whType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[whType]
	return ok
}

// Open creates a warehouse for cfg.Type. It does not ping.
func Open(ctx context.Context, cfg Config) (Warehouse, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
	return reg.Factory(ctx, cfg)
}
