// Package analytics aggregates visitor events into daily and hourly rollups
// and persists them.
package analytics

import "strings"

const (
	allStoresKey   = "all"
	storeKeyPrefix = "store:"
)

// Scope selects either every store or a single store. The zero value is
// AllStores.
type Scope struct {
	storeID string
}

// AllStores returns the scope covering every store.
func AllStores() Scope {
	return Scope{}
}

// Store returns the scope for one store. An empty id means all stores.
func Store(id string) Scope {
	return Scope{storeID: strings.TrimSpace(id)}
}

// IsAll reports whether the scope covers every store.
func (s Scope) IsAll() bool {
	return s.storeID == ""
}

// StoreID returns the store id, empty for AllStores.
func (s Scope) StoreID() string {
	return s.storeID
}

// Key is the persisted form of the scope. Store keys are prefixed so that no
// store id can equal the all-stores key.
func (s Scope) Key() string {
	if s.IsAll() {
		return allStoresKey
	}
	return storeKeyPrefix + s.storeID
}

func (s Scope) String() string {
	return s.Key()
}

// ParseScopeKey is the inverse of Key.
func ParseScopeKey(key string) (Scope, bool) {
	switch {
	case key == allStoresKey:
		return AllStores(), true
	case strings.HasPrefix(key, storeKeyPrefix) && len(key) > len(storeKeyPrefix):
		return Store(strings.TrimPrefix(key, storeKeyPrefix)), true
	default:
		return Scope{}, false
	}
}
