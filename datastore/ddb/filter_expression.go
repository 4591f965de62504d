/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/filter"
	sm "github.com/suparena/storemodel/storagemodels"
)

// filterExpression renders a filter tree as a DynamoDB FilterExpression with
// "#fN" name and ":vN" value placeholders. The placeholders never collide
// with those of the expression package.
type filterExpression struct {
	names  map[string]string
	values map[string]types.AttributeValue
	byName map[string]string
}

func newFilterExpression() *filterExpression {
	return &filterExpression{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
		byName: make(map[string]string),
	}
}

// path maps a dotted key to a placeholder path such as "#f0.#f1".
func (f *filterExpression) path(key string) string {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		ph, ok := f.byName[part]
		if !ok {
			ph = fmt.Sprintf("#f%d", len(f.byName))
			f.byName[part] = ph
			f.names[ph] = part
		}
		parts[i] = ph
	}
	return strings.Join(parts, ".")
}

func (f *filterExpression) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", err
	}
	ph := fmt.Sprintf(":v%d", len(f.values))
	f.values[ph] = av
	return ph, nil
}

func (f *filterExpression) render(n filter.Node) (string, error) {
	switch t := n.(type) {
	case nil:
		return "", nil
	case filter.Predicate:
		return f.predicate(t)
	case filter.And:
		return f.join(" AND ", t)
	case filter.Or:
		return f.join(" OR ", t)
	}
	return "", errors.NewFilterError("", "", fmt.Sprintf("unsupported filter node %T", n))
}

func (f *filterExpression) join(sep string, nodes []filter.Node) (string, error) {
	parts := make([]string, 0, len(nodes))
	for _, c := range nodes {
		s, err := f.render(c)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, "("+s+")")
		}
	}
	return strings.Join(parts, sep), nil
}

var comparisons = map[sm.Operator]string{
	sm.OpLess:           "<",
	sm.OpLessOrEqual:    "<=",
	sm.OpEqual:          "=",
	sm.OpNotEqual:       "<>",
	sm.OpGreaterOrEqual: ">=",
	sm.OpGreater:        ">",
}

func (f *filterExpression) predicate(p filter.Predicate) (string, error) {
	path := f.path(p.Key)
	// missing and null fields never satisfy a negative operator
	present := func() string {
		return fmt.Sprintf("attribute_exists(%s) AND NOT attribute_type(%s, %s)", path, path, f.mustValue("NULL"))
	}
	// contains() on a string is a substring test; array operators need a list
	list := func() string {
		return fmt.Sprintf("attribute_type(%s, %s)", path, f.mustValue("L"))
	}

	if cmp, ok := comparisons[p.Op]; ok {
		v, err := f.value(p.Value)
		if err != nil {
			return "", errors.NewFilterError(p.Key, string(p.Op), err.Error())
		}
		expr := fmt.Sprintf("%s %s %s", path, cmp, v)
		if p.Op == sm.OpNotEqual {
			expr = present() + " AND " + expr
		}
		return expr, nil
	}

	switch p.Op {
	case sm.OpArrayContains:
		v, err := f.value(p.Value)
		if err != nil {
			return "", errors.NewFilterError(p.Key, string(p.Op), err.Error())
		}
		return list() + " AND " + fmt.Sprintf("contains(%s, %s)", path, v), nil

	case sm.OpIn, sm.OpNotIn:
		values, err := f.list(p)
		if err != nil {
			return "", err
		}
		expr := fmt.Sprintf("%s IN (%s)", path, strings.Join(values, ", "))
		if p.Op == sm.OpNotIn {
			expr = present() + " AND NOT (" + expr + ")"
		}
		return expr, nil

	case sm.OpArrayContainsAny:
		values, err := f.list(p)
		if err != nil {
			return "", err
		}
		alts := make([]string, len(values))
		for i, v := range values {
			alts[i] = fmt.Sprintf("contains(%s, %s)", path, v)
		}
		return list() + " AND (" + strings.Join(alts, " OR ") + ")", nil
	}
	return "", errors.NewFilterError(p.Key, string(p.Op), "unknown operator")
}

func (f *filterExpression) mustValue(s string) string {
	ph, _ := f.value(s)
	return ph
}

func (f *filterExpression) list(p filter.Predicate) ([]string, error) {
	values, _ := p.Value.([]any)
	// DynamoDB limits the IN operand list
	if len(values) > 100 {
		return nil, errors.NewFilterError(p.Key, string(p.Op), "at most 100 values are supported")
	}
	out := make([]string, len(values))
	for i, v := range values {
		ph, err := f.value(v)
		if err != nil {
			return nil, errors.NewFilterError(p.Key, string(p.Op), err.Error())
		}
		out[i] = ph
	}
	return out, nil
}

// merge adds the placeholders of the expression package output to f.
func (f *filterExpression) merge(names map[string]string, values map[string]types.AttributeValue) (map[string]string, map[string]types.AttributeValue) {
	outNames := make(map[string]string, len(names)+len(f.names))
	for k, v := range names {
		outNames[k] = v
	}
	for k, v := range f.names {
		outNames[k] = v
	}
	outValues := make(map[string]types.AttributeValue, len(values)+len(f.values))
	for k, v := range values {
		outValues[k] = v
	}
	for k, v := range f.values {
		outValues[k] = v
	}
	if len(outValues) == 0 {
		outValues = nil
	}
	return outNames, outValues
}
