/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

// ReferenceField is the derived identifier attached to every record on read
// and stripped from every write.
const ReferenceField = "reference"

// Status is the outcome of an operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the uniform envelope every store operation returns.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	// Err is the classified cause of an error result. It is not serialized.
	Err error `json:"-"`
}

// Success builds a success envelope.
func Success(message string, data any) Result {
	return Result{Status: StatusSuccess, Message: message, Data: data}
}

// Failure builds an error envelope carrying err as its cause.
func Failure(message string, err error) Result {
	return Result{Status: StatusError, Message: message, Err: err}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Record returns Data as a single document, if it is one.
func (r Result) Record() (map[string]any, bool) {
	m, ok := r.Data.(map[string]any)
	return m, ok
}

// Records returns Data as a document list. A nil Data yields an empty list.
func (r Result) Records() []map[string]any {
	recs, _ := r.Data.([]map[string]any)
	return recs
}

// Operator is a comparison or membership operator understood by the store.
type Operator string

const (
	OpLess             Operator = "<"
	OpLessOrEqual      Operator = "<="
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpGreaterOrEqual   Operator = ">="
	OpGreater          Operator = ">"
	OpArrayContains    Operator = "array-contains"
	OpIn               Operator = "in"
	OpNotIn            Operator = "not-in"
	OpArrayContainsAny Operator = "array-contains-any"
)

// WhereClause is a single predicate over a field.
type WhereClause struct {
	Key      string   `json:"key" yaml:"key"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// ClauseType tags a clause inside a combined batch.
type ClauseType string

const (
	ClauseAnd ClauseType = "and"
	ClauseOr  ClauseType = "or"
)

// AndOrWhereClause is a WhereClause tagged for a combined batch.
type AndOrWhereClause struct {
	WhereClause `yaml:",inline"`
	Type        ClauseType `json:"type" yaml:"type"`
}

// Combinator describes how the clauses of a batch compose.
type Combinator string

const (
	CombineAnd   Combinator = "and"
	CombineOr    Combinator = "or"
	CombineAndOr Combinator = "andOr"
)

// CombinedWhere is a tagged clause batch with its combinator.
type CombinedWhere struct {
	Type      Combinator         `json:"type" yaml:"type"`
	Parameter []AndOrWhereClause `json:"parameter" yaml:"parameter"`
}

// WhereParams are the arguments of an AND-only query.
type WhereParams struct {
	Where []WhereClause `json:"wh,omitempty"`
	// Limit caps the result count when positive.
	Limit int `json:"lim,omitempty"`
	// Order names the field results are sorted by.
	Order string `json:"order,omitempty"`
	// Offset is the reference of the document to start after.
	Offset string `json:"offset,omitempty"`
}

// CombinedParams are the arguments of a combined and/or query.
type CombinedParams struct {
	Where  *CombinedWhere `json:"wh,omitempty"`
	Limit  int            `json:"lim,omitempty"`
	Order  string         `json:"order,omitempty"`
	Offset string         `json:"offset,omitempty"`
}

// IncrementParams are the arguments of an atomic counter update.
type IncrementParams struct {
	DBReference string `json:"dbReference"`
	Key         string `json:"key"`
	// IsIncrement must be set for a positive delta; otherwise the delta is negated.
	IsIncrement bool `json:"isIncrement,omitempty"`
	// IncrementalValue defaults to 1 when nil.
	IncrementalValue *float64 `json:"incrementalValue,omitempty"`
}

// Delta is the signed amount the counter moves by.
func (p IncrementParams) Delta() float64 {
	v := 1.0
	if p.IncrementalValue != nil {
		v = *p.IncrementalValue
	}
	if !p.IsIncrement {
		v = -v
	}
	return v
}

// BatchUpdate is one partial update inside an update batch.
type BatchUpdate struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}
