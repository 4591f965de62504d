/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storemodel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/suparena/storemodel/docstore"
)

// Storage manages the collection stores of an application by key
// (for example "Players" or "RatingSystems").
type Storage interface {
	// RegisterStore registers store under key. Keys are unique.
	RegisterStore(key string, store docstore.Store) error
	// GetStore retrieves the store registered under key.
	GetStore(key string) (docstore.Store, error)
	// RemoveStore forgets the store registered under key.
	RemoveStore(key string) error
	// ListStores returns the registered keys in sorted order.
	ListStores() []string
}

// storageManager is a thread-safe implementation of the Storage interface.
type storageManager struct {
	mu     sync.RWMutex
	stores map[string]docstore.Store
}

// NewStorageManager creates and returns a new Storage implementation.
func NewStorageManager() Storage {
	return &storageManager{
		stores: make(map[string]docstore.Store),
	}
}

func (sm *storageManager) RegisterStore(key string, store docstore.Store) error {
	if store == nil {
		return fmt.Errorf("store for key %q must not be nil", key)
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.stores[key]; exists {
		return fmt.Errorf("store with key %q already registered", key)
	}
	sm.stores[key] = store
	return nil
}

func (sm *storageManager) GetStore(key string) (docstore.Store, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	store, exists := sm.stores[key]
	if !exists {
		return nil, fmt.Errorf("store with key %q not found", key)
	}
	return store, nil
}

func (sm *storageManager) RemoveStore(key string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.stores[key]; !exists {
		return fmt.Errorf("store with key %q not found", key)
	}
	delete(sm.stores, key)
	return nil
}

func (sm *storageManager) ListStores() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	keys := make([]string, 0, len(sm.stores))
	for k := range sm.stores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
