/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Macros every index map may reference. Any other macro names a document field.
const (
	MacroCollection = "collection"
	MacroID         = "id"
)

// DefaultIndexMap is the key layout of collections without a registered map:
// one partition per collection, one sort key per document.
var DefaultIndexMap = map[string]string{
	"PK": "COLL#{collection}",
	"SK": "DOC#{id}",
}

// MacroPattern matches a {macro} in an index map template.
var MacroPattern = regexp.MustCompile(`{([^}]+)}`)

var (
	indexMapRegistry = make(map[string]map[string]string)
	mu               sync.RWMutex
)

// RegisterIndexMap associates a collection with a key layout. The map must
// contain PK and SK templates; PK may not reference {id} and SK must
// reference it exactly once. Further entries (for example GSI1PK) are
// derived attributes expanded from document fields on write.
func RegisterIndexMap(collection string, idxMap map[string]string) error {
	if collection == "" {
		return fmt.Errorf("index map: empty collection name")
	}
	if err := ValidateIndexMap(idxMap); err != nil {
		return fmt.Errorf("index map for %q: %w", collection, err)
	}

	cp := make(map[string]string, len(idxMap))
	for k, v := range idxMap {
		cp[k] = v
	}

	mu.Lock()
	defer mu.Unlock()
	indexMapRegistry[collection] = cp
	return nil
}

// ValidateIndexMap checks the PK and SK templates of an index map.
func ValidateIndexMap(idxMap map[string]string) error {
	pk, ok := idxMap["PK"]
	if !ok || pk == "" {
		return fmt.Errorf("missing PK template")
	}
	sk, ok := idxMap["SK"]
	if !ok || sk == "" {
		return fmt.Errorf("missing SK template")
	}
	if strings.Contains(pk, "{"+MacroID+"}") {
		return fmt.Errorf("PK template %q must not reference {%s}", pk, MacroID)
	}
	if strings.Count(sk, "{"+MacroID+"}") != 1 {
		return fmt.Errorf("SK template %q must reference {%s} exactly once", sk, MacroID)
	}
	return nil
}

// GetIndexMap returns the key layout for a collection, falling back to
// DefaultIndexMap. The returned map must not be modified.
func GetIndexMap(collection string) map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	if m, ok := indexMapRegistry[collection]; ok {
		return m
	}
	return DefaultIndexMap
}

// UnregisterIndexMap removes a collection's key layout.
func UnregisterIndexMap(collection string) {
	mu.Lock()
	defer mu.Unlock()
	delete(indexMapRegistry, collection)
}

// Macros lists the macro names referenced by a template.
func Macros(template string) []string {
	var names []string
	for _, m := range MacroPattern.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}
