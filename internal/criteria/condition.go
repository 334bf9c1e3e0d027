// Package criteria implements the rule atoms shared by dynamic segments,
// lead scoring and lead assignment: a fixed set of comparison operators, a
// field resolver over contacts and their custom fields, and a dot-path
// lookup over arbitrary event payloads.
//
// A condition list is matched with AND semantics only. An empty list
// matches everything.
package criteria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Operator represents a comparison operator
type Operator string

const (
	OpEquals      Operator = "Equals"
	OpNotEquals   Operator = "NotEquals"
	OpContains    Operator = "Contains"
	OpNotContains Operator = "NotContains"
	OpStartsWith  Operator = "StartsWith"
	OpEndsWith    Operator = "EndsWith"
	OpIsEmpty     Operator = "IsEmpty"
	OpIsNotEmpty  Operator = "IsNotEmpty"
	OpGreaterThan Operator = "GreaterThan"
	OpLessThan    Operator = "LessThan"
	OpExists      Operator = "Exists"
	OpNotExists   Operator = "NotExists"
	OpMatches     Operator = "Matches"
)

// operatorOrder is the declaration order used when criteria are stored with
// numeric operator codes.
var operatorOrder = []Operator{
	OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith,
	OpIsEmpty, OpIsNotEmpty, OpGreaterThan, OpLessThan, OpExists, OpNotExists,
	OpMatches,
}

var operatorAliases = map[string]Operator{
	"regex": OpMatches,
}

func init() {
	for _, op := range operatorOrder {
		operatorAliases[strings.ToLower(string(op))] = op
	}
}

// ParseOperator maps a stored operator name to its canonical form, ignoring
// case. Unknown names are kept verbatim and never match.
func ParseOperator(s string) Operator {
	if op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op
	}
	return Operator(s)
}

// Known reports whether the operator is one the evaluator understands.
func (o Operator) Known() bool {
	_, ok := operatorAliases[strings.ToLower(string(o))]
	return ok
}

// UnmarshalJSON accepts either an operator name or its numeric code.
func (o *Operator) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = ParseOperator(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("operator must be a name or code: %w", err)
	}
	if n < 0 || n >= len(operatorOrder) {
		return fmt.Errorf("unknown operator code %d", n)
	}
	*o = operatorOrder[n]
	return nil
}

// Condition is a single {field, operator, value} rule atom.
type Condition struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    string   `json:"value"`
}

type conditionList struct {
	Items []Condition `validate:"dive"`
}

var validate = validator.New()

// ParseConditions decodes a stored condition list. Empty input, "null" and
// "[]" all yield an empty list. Callers decide what a parse error means.
func ParseConditions(raw []byte) ([]Condition, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var conds []Condition
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if err := validate.Struct(conditionList{Items: conds}); err != nil {
		return nil, fmt.Errorf("invalid conditions: %w", err)
	}
	return conds, nil
}

// MarshalConditions encodes a condition list for storage.
func MarshalConditions(conds []Condition) (json.RawMessage, error) {
	if conds == nil {
		conds = []Condition{}
	}
	return json.Marshal(conds)
}
