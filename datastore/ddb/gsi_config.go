/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/storemodel/filter"
	"github.com/suparena/storemodel/registry"
	sm "github.com/suparena/storemodel/storagemodels"
)

// GSIConfig holds the configuration for GSI key mappings. The index must
// project all attributes.
type GSIConfig struct {
	// IndexName is the actual GSI name in DynamoDB (e.g., "GSI1")
	IndexName string
	// PartitionKeyName is the partition key attribute of the GSI (e.g., "PK1").
	// Collections opt in by giving it a template in their index map.
	PartitionKeyName string
	// SortKeyName is the sort key attribute of the GSI (e.g., "SK1")
	SortKeyName string
}

// DefaultGSIConfigs holds the default GSI configurations
var DefaultGSIConfigs = map[string]GSIConfig{
	"GSI1": {
		IndexName:        "GSI1",
		PartitionKeyName: "PK1",
		SortKeyName:      "SK1",
	},
}

// GetGSIConfig returns the GSI configuration for a given index name
func GetGSIConfig(indexName string) (GSIConfig, bool) {
	config, ok := DefaultGSIConfigs[indexName]
	return config, ok
}

// equalities collects the top level equality predicates of a filter.
func equalities(n filter.Node) map[string]any {
	eq := make(map[string]any)
	add := func(n filter.Node) {
		if p, ok := n.(filter.Predicate); ok && p.Op == sm.OpEqual {
			eq[p.Key] = p.Value
		}
	}
	switch t := n.(type) {
	case filter.Predicate:
		add(t)
	case filter.And:
		for _, c := range t {
			add(c)
		}
	}
	return eq
}

// indexFor picks the first configured GSI whose partition key template for
// this collection is fully determined by equality predicates of f. It
// returns the index and the partition key value to query.
func (b *Backend) indexFor(l keyLayout, f filter.Node) (GSIConfig, string, bool) {
	if len(b.gsis) == 0 {
		return GSIConfig{}, "", false
	}
	eq := equalities(f)
	if len(eq) == 0 {
		return GSIConfig{}, "", false
	}

	for _, gsi := range b.gsis {
		template, ok := l.indexMap[gsi.PartitionKeyName]
		if !ok {
			continue
		}
		av := make(map[string]types.AttributeValue)
		usable := true
		for _, macro := range registry.Macros(template) {
			if macro == registry.MacroCollection {
				continue
			}
			v, found := eq[macro]
			if macro == registry.MacroID || !found {
				usable = false
				break
			}
			enc, err := attributevalue.Marshal(v)
			if err != nil {
				usable = false
				break
			}
			av[macro] = enc
		}
		if !usable {
			continue
		}
		if value, ok := l.expandMacros(template, "", av); ok {
			return gsi, value, true
		}
	}
	return GSIConfig{}, "", false
}
