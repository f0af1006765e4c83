package workflow

import "encoding/json"

// Operator is a leaf comparison in a condition tree.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpExists      Operator = "exists"
)

// Operators lists the closed set of leaf operators.
func Operators() []Operator {
	return []Operator{OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpIn, OpNotIn, OpExists}
}

// ValidOperator reports whether op is part of the closed set.
func ValidOperator(op Operator) bool {
	for _, known := range Operators() {
		if op == known {
			return true
		}
	}
	return false
}

// Condition is a nested boolean expression. A node is either a composite
// (All or Any non-nil, including present-but-empty lists) or a leaf
// (Field/Operator/Value). An empty All is vacuously true; an empty Any is
// vacuously false.
type Condition struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`

	Field    string      `json:"field,omitempty"`
	Operator Operator    `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// IsComposite reports whether the node is an all/any combinator. A JSON
// `{"all": []}` decodes to a non-nil empty slice, so presence is preserved.
func (c Condition) IsComposite() bool {
	return c.All != nil || c.Any != nil
}

// MarshalJSON emits all/any whenever the list is present, even when empty.
// The stock omitempty handling would drop `{"any": []}` entirely, silently
// turning a never-matching composite into an unconditional leaf on the next
// decode.
func (c Condition) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 3)
	if c.All != nil {
		out["all"] = c.All
	}
	if c.Any != nil {
		out["any"] = c.Any
	}
	if !c.IsComposite() {
		out["field"] = c.Field
		out["operator"] = c.Operator
		if c.Value != nil {
			out["value"] = c.Value
		}
	}
	return json.Marshal(out)
}
