/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package filter

import (
	"fmt"
	"strings"

	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/storagemodels"
)

// Node is one element of a filter tree: a Predicate, an And or an Or.
// A nil Node matches every document.
type Node interface {
	node()
	String() string
}

// Predicate is a single comparison against a document field.
// For list operators Value is always a non-empty []any.
type Predicate struct {
	Key   string
	Op    storagemodels.Operator
	Value any
}

// And matches when every child matches.
type And []Node

// Or matches when at least one child matches.
type Or []Node

func (Predicate) node() {}
func (And) node()       {}
func (Or) node()        {}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Key, p.Op, p.Value)
}

func (a And) String() string { return group("AND", a) }
func (o Or) String() string  { return group("OR", o) }

func group(name string, nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

var operators = map[storagemodels.Operator]bool{
	storagemodels.OpLess:             false,
	storagemodels.OpLessOrEqual:      false,
	storagemodels.OpEqual:            false,
	storagemodels.OpNotEqual:         false,
	storagemodels.OpGreaterOrEqual:   false,
	storagemodels.OpGreater:          false,
	storagemodels.OpArrayContains:    false,
	storagemodels.OpIn:               true,
	storagemodels.OpNotIn:            true,
	storagemodels.OpArrayContainsAny: true,
}

// IsListOperator reports whether op takes a list of values.
func IsListOperator(op storagemodels.Operator) bool {
	return operators[op]
}

// NewPredicate validates a clause and normalizes its value.
func NewPredicate(c storagemodels.WhereClause) (Predicate, error) {
	if strings.TrimSpace(c.Key) == "" {
		return Predicate{}, errors.NewFilterError(c.Key, string(c.Operator), "empty key")
	}
	list, known := operators[c.Operator]
	if !known {
		return Predicate{}, errors.NewFilterError(c.Key, string(c.Operator), "unknown operator")
	}
	value := Normalize(c.Value)
	if list {
		values, ok := value.([]any)
		if !ok {
			return Predicate{}, errors.NewFilterError(c.Key, string(c.Operator), "value must be a list")
		}
		if len(values) == 0 {
			return Predicate{}, errors.NewFilterError(c.Key, string(c.Operator), "value list is empty")
		}
	}
	return Predicate{Key: c.Key, Op: c.Operator, Value: value}, nil
}

// AllOf joins nodes conjunctively, dropping nil nodes and unwrapping a
// single survivor.
func AllOf(nodes ...Node) Node {
	kept := compact(nodes)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And(kept)
}

// AnyOf joins nodes disjunctively, dropping nil nodes and unwrapping a
// single survivor.
func AnyOf(nodes ...Node) Node {
	kept := compact(nodes)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Or(kept)
}

func compact(nodes []Node) []Node {
	kept := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return kept
}

// Where builds the conjunction of an AND-only clause batch.
func Where(clauses []storagemodels.WhereClause) (Node, error) {
	nodes := make([]Node, 0, len(clauses))
	for _, c := range clauses {
		p, err := NewPredicate(c)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, p)
	}
	return AllOf(nodes...), nil
}

// Combined builds the tree of a tagged clause batch.
//
//	and:   AND(every clause)
//	or:    OR(every clause)
//	andOr: AND(and-tagged..., OR(or-tagged...))
//
// In andOr mode clauses are partitioned by their own tag, not by position.
func Combined(cw *storagemodels.CombinedWhere) (Node, error) {
	if cw == nil {
		return nil, nil
	}
	var all, ands, ors []Node
	for _, c := range cw.Parameter {
		p, err := NewPredicate(c.WhereClause)
		if err != nil {
			return nil, err
		}
		all = append(all, p)
		switch c.Type {
		case storagemodels.ClauseAnd:
			ands = append(ands, p)
		case storagemodels.ClauseOr:
			ors = append(ors, p)
		default:
			if cw.Type == storagemodels.CombineAndOr {
				return nil, errors.NewFilterError(c.Key, string(c.Operator), fmt.Sprintf("unknown clause type %q", c.Type))
			}
		}
	}

	switch cw.Type {
	case storagemodels.CombineAnd:
		return AllOf(all...), nil
	case storagemodels.CombineOr:
		return AnyOf(all...), nil
	case storagemodels.CombineAndOr:
		return AllOf(append(ands, AnyOf(ors...))...), nil
	}
	return nil, errors.NewFilterError("", "", fmt.Sprintf("unknown combinator %q", cw.Type))
}
